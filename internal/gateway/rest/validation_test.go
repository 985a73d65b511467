package rest

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	req, err := DecodeJSON[GroupDefaultRequest]([]byte(`{"priority":2,"max_byte_size":10}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), *req.Priority)
	assert.Equal(t, uint32(10), *req.MaxByteSize)

	_, err = DecodeJSON[GroupDefaultRequest]([]byte(`{"priority":2}`))
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, "MaxByteSize", ve.Errors[0].Field)
	assert.Equal(t, "This field is required", ve.Errors[0].Message)

	_, err = DecodeJSON[GroupDefaultRequest]([]byte(`[`))
	assert.ErrorIs(t, err, ErrBadRequest)

	// empty payloads validate the zero value
	stats, err := DecodeJSON[StatsRequest](nil)
	require.NoError(t, err)
	assert.False(t, stats.Add)
}

func TestDecodeQuery(t *testing.T) {
	q, err := decodeQuery[MessageQuery](url.Values{"priority": {"7"}, "reverse": {"true"}, "other": {"x"}})
	require.NoError(t, err)
	require.NotNil(t, q.Priority)
	assert.Equal(t, uint32(7), *q.Priority)
	assert.True(t, q.Reverse)
	assert.Empty(t, q.UUID)

	_, err = decodeQuery[MessageQuery](url.Values{"priority": {"x"}})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = decodeQuery[DeleteGroupQuery](url.Values{})
	var ve ValidationErrors
	assert.ErrorAs(t, err, &ve)
}

func TestMessageQuery_Selector(t *testing.T) {
	q := MessageQuery{UUID: "12-3"}
	sel, err := q.Selector()
	require.NoError(t, err)
	require.NotNil(t, sel.ID)
	assert.Equal(t, "12-3", sel.ID.String())

	q = MessageQuery{UUID: "12"}
	_, err = q.Selector()
	assert.Error(t, err)
}

func TestFormatValidationErrors_Foreign(t *testing.T) {
	ve := formatValidationErrors(errors.New("odd"))
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, "unknown", ve.Errors[0].Field)
	assert.Equal(t, "unknown: odd", ve.Error())
}
