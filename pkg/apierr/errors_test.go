package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBasicProperties(t *testing.T) {
	err := New(BadRequest, "bad input")

	assert.Equal(t, BadRequest, err.Type)
	assert.Equal(t, "bad input", err.Message)
	assert.Empty(t, err.Details)
	assert.Nil(t, err.Cause)
	assert.Equal(t, "bad_request: bad input", err.Error())
}

func TestWithDetailsAppendsToErrorString(t *testing.T) {
	err := New(Conflict, "duplicate artifact").WithDetails("name+version already exists")
	assert.Equal(t, "conflict: duplicate artifact (name+version already exists)", err.Error())
}

func TestWrapCarriesCause(t *testing.T) {
	cause := errors.New("tx aborted")
	err := Wrap(cause, Internal, "commit failed")

	assert.Equal(t, Internal, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestWrapfFormatsMessage(t *testing.T) {
	cause := errors.New("not found")
	err := Wrapf(cause, NotFound, "artifact %s not found", "abc-123")
	assert.Equal(t, "artifact abc-123 not found", err.Message)
}

func TestIsType(t *testing.T) {
	err := NotFoundf("artifact %s", "abc")
	assert.True(t, IsType(err, NotFound))
	assert.False(t, IsType(err, Forbidden))
	assert.False(t, IsType(errors.New("plain"), NotFound))
}

func TestConvenienceConstructors(t *testing.T) {
	assert.Equal(t, Forbidden, Forbiddenf("nope").Type)
	assert.Equal(t, BadRequest, BadRequestf("nope").Type)
	assert.Equal(t, Conflict, Conflictf("nope").Type)
}
