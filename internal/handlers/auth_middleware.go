package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/storage"
)

// authHeaders are checked in order; the first non-empty one wins.
var authHeaders = []string{"X-Fpx-Authorize", "Authorization", "Authorize"}

const clientKey = "client"

// RequireClient middleware resolves the client whose id is sent in one of
// the authorization headers.
func RequireClient(clients storage.ClientStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := clientSecret(c)
		if secret == "" {
			abortWithError(c, apperr.NewNotAuthenticated("Client id is required"))
			return
		}

		client, err := clients.FindClientByID(c.Request.Context(), secret)
		if errors.Is(err, storage.ErrNotFound) {
			abortWithError(c, apperr.NewNotAuthenticated("Client id is not recognized"))
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(clientKey, client)
		c.Next()
	}
}

func clientSecret(c *gin.Context) string {
	for _, h := range authHeaders {
		if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
			return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
		}
	}
	return ""
}

// currentClient returns the client set by RequireClient.
func currentClient(c *gin.Context) *models.Client {
	if v, ok := c.Get(clientKey); ok {
		if client, ok := v.(*models.Client); ok {
			return client
		}
	}
	return nil
}
