package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/fleetsim/internal/faults"
	"github.com/fentz26/fleetsim/internal/sim"
	"github.com/fentz26/fleetsim/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnknownZone),
		errors.Is(err, store.ErrInvalidTask),
		errors.Is(err, faults.ErrInvalidFault),
		errors.Is(err, sim.ErrInvalidConfig),
		errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, faults.ErrRecoveryAborted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c echo.Context, err error) error {
	return c.JSON(statusFor(err), ErrorResponse{Message: err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Message: msg})
}
