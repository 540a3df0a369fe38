package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("book: %w", SlotUnavailable(ReasonSlotTaken, "slot is already booked"))

	assert.True(t, errors.Is(err, ErrSlotUnavailable))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(err, &Error{Code: CodeSlotUnavailable, Reason: ReasonSlotTaken}))
	assert.False(t, errors.Is(err, &Error{Code: CodeSlotUnavailable, Reason: ReasonNoActiveRule}))

	e, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, ReasonSlotTaken, e.Reason)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeValidation))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeSlotUnavailable))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeConflict))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(CodeInvalidTransition))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(CodeForbidden))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Code("boom")))
}
