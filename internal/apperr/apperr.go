// Package apperr defines the error taxonomy shared by the pricing core and its boundaries.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound marks an unknown cigar, competitor, or other catalog entity.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable marks a scraping provider or search index that could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrConfigurationMissing marks absent credentials or endpoints required by an operation.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrMalformedInput marks request parameters or rows that cannot be interpreted.
	ErrMalformedInput = errors.New("malformed input")
)

// HTTPStatus maps an error from the core to the status code returned by API handlers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrConfigurationMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrMalformedInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
