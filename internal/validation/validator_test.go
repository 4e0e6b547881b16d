package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title  string   `json:"title" validate:"required"`
	Rating int      `json:"rating" validate:"min=1,max=5"`
	Email  string   `json:"email,omitempty" validate:"omitempty,email"`
	Tags   []string `json:"genre" validate:"required,min=1,dive,required"`
}

func TestStruct_Valid(t *testing.T) {
	err := New().Struct(sample{Title: "Dune", Rating: 5, Tags: []string{"sci-fi"}})
	assert.NoError(t, err)
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := New().Struct(sample{Rating: 9, Email: "nope"})
	require.Error(t, err)

	var verrs Errors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]string{}
	for _, fe := range verrs {
		fields[fe.Field] = fe.Msg
	}
	assert.Equal(t, "title is required", fields["title"])
	assert.Equal(t, "rating must be at most 5", fields["rating"])
	assert.Equal(t, "email must be a valid email address", fields["email"])
	assert.Equal(t, "genre is required", fields["genre"])
}

func TestStruct_DiveReportsIndex(t *testing.T) {
	err := New().Struct(sample{Title: "Dune", Rating: 3, Tags: []string{""}})

	var verrs Errors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "genre[0]", verrs[0].Field)
}

func TestErrors_Error(t *testing.T) {
	err := Errors{{Field: "a", Msg: "bad"}, {Field: "b", Msg: "worse"}}
	assert.Equal(t, "a: bad; b: worse", err.Error())
}
