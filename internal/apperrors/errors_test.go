package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(NewValidationError("model_name", "unknown metric")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewNotFoundError("alert_rule", "abc")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NewStorageError("insert", errors.New("conn reset"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NewPubSubError("publish", errors.New("broker down"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NewInternalError(errors.New("nil pointer"))))
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
}

func TestNotFoundErrorUnwrapsToSentinel(t *testing.T) {
	err := NewNotFoundError("span", "xyz")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("metric", "not in closed set")
	assert.Contains(t, err.Error(), "metric")
	assert.Contains(t, err.Error(), "not in closed set")
}
