// internal/catalog/update.go
package catalog

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"bookworm/internal/validation"
)

// UpdatableFields are the only keys an update may name.
var UpdatableFields = []string{
	"title", "author", "description", "genre", "coverImage",
	"totalCopies", "availableCopies", "location", "publishedYear",
	"publisher", "language",
}

// checkPatchFields rejects an empty patch or one naming any key outside
// UpdatableFields. It returns the sorted keys.
func checkPatchFields(patch map[string]json.RawMessage) ([]string, error) {
	if len(patch) == 0 {
		return nil, fieldError("body", "no fields to update")
	}

	fields := make([]string, 0, len(patch))
	for k := range patch {
		fields = append(fields, k)
	}
	slices.Sort(fields)

	var rejected validation.Errors
	for _, f := range fields {
		if !slices.Contains(UpdatableFields, f) {
			rejected = append(rejected, validation.FieldError{Field: f, Msg: f + " cannot be updated"})
		}
	}
	if len(rejected) > 0 {
		return nil, validationError(rejected)
	}
	return fields, nil
}

// applyPatch applies patch to a copy of b. Any invalid key or value rejects
// the whole patch. It returns the sorted names of the applied fields.
func applyPatch(b *Book, patch map[string]json.RawMessage) (*Book, []string, error) {
	fields, err := checkPatchFields(patch)
	if err != nil {
		return nil, nil, err
	}

	out := b.clone()
	var errs validation.Errors
	for _, f := range fields {
		raw := patch[f]
		var err *validation.FieldError
		switch f {
		case "title":
			out.Title, err = decodeText(f, raw, true)
		case "author":
			out.Author, err = decodeText(f, raw, true)
		case "description":
			out.Description, err = decodeText(f, raw, false)
		case "coverImage":
			out.CoverImage, err = decodeText(f, raw, false)
		case "location":
			out.Location, err = decodeText(f, raw, false)
		case "publisher":
			out.Publisher, err = decodeText(f, raw, false)
		case "language":
			out.Language, err = decodeText(f, raw, false)
			if out.Language == "" {
				out.Language = DefaultLanguage
			}
		case "genre":
			out.Genre, err = decodeGenre(raw)
		case "totalCopies":
			out.TotalCopies, err = decodeCount(f, raw)
		case "availableCopies":
			out.AvailableCopies, err = decodeCount(f, raw)
		case "publishedYear":
			out.PublishedYear, err = decodeCount(f, raw)
		}
		if err != nil {
			errs = append(errs, *err)
		}
	}
	if len(errs) > 0 {
		return nil, nil, validationError(errs)
	}
	if err := out.checkInventory(); err != nil {
		return nil, nil, err
	}
	return out, fields, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeText(field string, raw json.RawMessage, required bool) (string, *validation.FieldError) {
	var s string
	if isNull(raw) || json.Unmarshal(raw, &s) != nil {
		return "", &validation.FieldError{Field: field, Msg: field + " must be a string"}
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", &validation.FieldError{Field: field, Msg: field + " is required"}
	}
	return s, nil
}

func decodeCount(field string, raw json.RawMessage) (int, *validation.FieldError) {
	var n int
	if isNull(raw) || json.Unmarshal(raw, &n) != nil {
		return 0, &validation.FieldError{Field: field, Msg: field + " must be an integer"}
	}
	if n < 0 {
		return 0, &validation.FieldError{Field: field, Msg: field + " must be at least 0"}
	}
	return n, nil
}

// decodeGenre accepts a single tag or a list of tags.
func decodeGenre(raw json.RawMessage) ([]string, *validation.FieldError) {
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, &validation.FieldError{Field: "genre", Msg: "genre must be a string or a list of strings"}
		}
		tags = []string{one}
	}

	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, &validation.FieldError{Field: "genre", Msg: "genre is required"}
	}
	return out, nil
}
