package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agenttrace/agenttrace/internal/apperrors"
)

// mapError maps a domain error to an Echo HTTP error using the shared
// apperrors taxonomy.
func mapError(err error) *echo.HTTPError {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("unexpected request error", "error", err)
		return echo.NewHTTPError(status, "internal server error")
	}

	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		return echo.NewHTTPError(status, validationErr.Error())
	}
	var notFoundErr *apperrors.NotFoundError
	if errors.As(err, &notFoundErr) {
		return echo.NewHTTPError(status, notFoundErr.Error())
	}
	return echo.NewHTTPError(status, err.Error())
}
