package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/transport"
)

// abortWithError renders err as {"errors": ...} with the matching status.
func abortWithError(c *gin.Context, err error) {
	err = fromTransport(err)
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, apperr.Body(err))
}

// fromTransport maps fetch failures to a 502 carrying the origin status.
func fromTransport(err error) error {
	if !errors.Is(err, transport.ErrTransport) {
		return err
	}
	details := map[string]any{"url": err.Error()}
	var na *transport.URLNotAvailableError
	if errors.As(err, &na) {
		details["status"] = na.StatusCode
	}
	return &apperr.Error{Kind: apperr.KindTransport, Details: details, Err: err}
}
