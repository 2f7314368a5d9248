package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/ntbk/internal/taskclient"
)

// httpStatus maps task client errors onto HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, taskclient.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, taskclient.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, taskclient.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
