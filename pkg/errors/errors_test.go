package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("claim: %w", Clone(ErrSlotUnavailable, ""))
	appErr := FromError(wrapped)
	assert.Equal(t, ErrSlotUnavailable.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
}

func TestFromErrorHidesUntypedCause(t *testing.T) {
	appErr := FromError(errors.New("pq: relation does not exist"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, ErrInternal.Message, appErr.Message)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := Clone(ErrInvalidTransition, "lesson already scheduled")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, HasCode(fmt.Errorf("outer: %w", err), ErrInvalidTransition.Code))
}
