package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps a taxonomy error to the HTTP status code the API layer
// should respond with: validation -> 400, not-found -> 404,
// storage/pub-sub/internal -> 500. Unrecognized errors default to 500,
// matching the taxonomy's closed-set contract (anything else is treated as
// an internal error).
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) || errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return http.StatusInternalServerError
	}
	var pubsubErr *PubSubError
	if errors.As(err, &pubsubErr) {
		return http.StatusInternalServerError
	}
	var internalErr *InternalError
	if errors.As(err, &internalErr) {
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
