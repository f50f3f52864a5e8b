package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *StandardError
		want int
	}{
		{NewNotFound("book", "b1"), http.StatusNotFound},
		{NewEmptyResult("books"), http.StatusNotFound},
		{NewLimitExceeded("too many", 3, 4), http.StatusBadRequest},
		{NewUnavailable("b1"), http.StatusBadRequest},
		{NewInvalidRequest("bad", ""), http.StatusBadRequest},
		{NewConflict("taken", ""), http.StatusConflict},
		{New(CodeUnauthorized, "no", ""), http.StatusUnauthorized},
		{New(CodeForbidden, "no", ""), http.StatusForbidden},
		{NewTransactionFailure("create", stderrors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestMatchingByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewUnavailable("b1"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	cause := stderrors.New("disk full")
	assert.ErrorIs(t, NewTransactionFailure("create", cause), cause)
}

func TestInTransaction(t *testing.T) {
	assert.NoError(t, InTransaction("op", nil))

	domain := NewUnavailable("b1")
	assert.Same(t, domain, InTransaction("op", domain))

	err := InTransaction("op", stderrors.New("locked"))
	assert.ErrorIs(t, err, ErrTransactionFailure)
	assert.Equal(t, "transaction failed: op", err.Error())
}

func TestFrom(t *testing.T) {
	se := From(stderrors.New("boom"))
	assert.Equal(t, CodeInternalError, se.Code)
	assert.Equal(t, "boom", se.Details)

	conflict := NewConflict("taken", "")
	assert.Same(t, conflict, From(fmt.Errorf("wrap: %w", conflict)))
}
