package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"validation", Validation("quantity", "must be positive"), CategoryInput},
		{"duplicate", Duplicate("email", "a@b.org"), CategoryInput},
		{"not found", NotFound("donations", "x"), CategoryStale},
		{"transition", &InvalidTransitionError{Entity: "donation", From: "Pending", To: "Received"}, CategoryStale},
		{"persistence", Persistence("set", "k", errors.New("disk full")), CategoryRetry},
		{"wrapped", fmt.Errorf("confirm: %w", NotFound("donations", "x")), CategoryStale},
		{"other", errors.New("boom"), CategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.err))
		})
	}
}

func TestPersistenceNilPassthrough(t *testing.T) {
	assert.NoError(t, Persistence("set", "k", nil))
}

func TestPersistenceUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence("get", "k", cause)
	assert.ErrorIs(t, err, cause)
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(Validation("item_name", "is required")), "fix your input")
	assert.Contains(t, UserMessage(&InvalidTransitionError{Entity: "donation", From: "Received", To: "Confirmed"}), "already Received")
	assert.Contains(t, UserMessage(Persistence("set", "k", errors.New("x"))), "try again")
	assert.Equal(t, "", UserMessage(nil))
}
