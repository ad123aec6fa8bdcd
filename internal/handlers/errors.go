// Package handlers implements the HTTP handlers of spec.md §6, thin
// translators between gin.Context and the internal/api facade. They
// hold no business logic: validation lives in the registry, HTTP
// status/envelope mapping lives here.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
)

// errorEnvelope renders the {error:{code,message,details?}} shape of
// spec.md §6. It does not abort the gin chain; callers return after it.
func errorEnvelope(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondError maps a core operation error onto the HTTP status/code
// pairs of spec.md §6/§7 via errors.Is, never by string matching.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		errorEnvelope(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrAddressUnavailable):
		errorEnvelope(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		errorEnvelope(c, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrInvalidState):
		errorEnvelope(c, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		errorEnvelope(c, http.StatusInternalServerError, "server_error", "internal error")
	}
}
