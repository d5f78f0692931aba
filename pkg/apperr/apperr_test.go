package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, Unauthenticated.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, Forbidden.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, ValidationFailure.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, StoreFailure.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Unexpected.HTTPStatus())
}

func TestKindOf(t *testing.T) {
	base := errors.New("insert failed")
	wrapped := fmt.Errorf("step profile: %w", Wrap(StoreFailure, base))

	assert.Equal(t, StoreFailure, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, Unexpected, KindOf(base))
}

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, Wrap(StoreFailure, errors.New("permissions insert rejected")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"permissions insert rejected"}`, rec.Body.String())
}

func TestWrite_HidesUnexpected(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "missing token", New(Unauthenticated, "missing token").Error())
	assert.Equal(t, "forbidden", (&Error{Kind: Forbidden}).Error())
}
