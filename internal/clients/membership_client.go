// internal/clients/membership_client.go
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookworm/internal/membership"
)

// ErrMemberNotFound is returned when the membership service does not know the id.
var ErrMemberNotFound = errors.New("member not found")

// MembershipClient reads public member profiles from the membership service.
type MembershipClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewMembershipClient(baseURL string) *MembershipClient {
	return &MembershipClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *MembershipClient) GetProfile(ctx context.Context, id uuid.UUID) (*membership.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/members/%s/profile", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrMemberNotFound
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var profile membership.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

// ReviewerName resolves the display name shown on a member's reviews.
func (c *MembershipClient) ReviewerName(ctx context.Context, id uuid.UUID) (string, error) {
	profile, err := c.GetProfile(ctx, id)
	if err != nil {
		return "", err
	}
	return profile.Name, nil
}
