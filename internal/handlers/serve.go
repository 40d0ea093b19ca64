package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/storage"
	"github.com/DataShades/fpx/internal/utils"
)

// StreamClaims is the payload of an ad-hoc stream token.
type StreamClaims struct {
	URL             string            `json:"url"`
	ContentType     string            `json:"content-type,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	jwt.RegisteredClaims
}

// StreamURL streams a single URL described by a JWT signed with the id of
// the client named in ?client=. No ticket has to be generated beforehand.
func StreamURL(c *gin.Context, env *Env) {
	name := c.Query("client")
	if name == "" {
		abortWithError(c, apperr.FieldError("client", "Missing data for required field."))
		return
	}
	client, err := env.Store.FindClientByName(c.Request.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, apperr.NewNotFound("client", name))
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	claims, err := ParseStreamToken(c.Param("token"), client.ID, env.Config.JWTAlgorithm)
	if err != nil {
		abortWithError(c, apperr.NewJwt(err))
		return
	}

	ticket := models.NewTicket(models.TicketTypeStream, models.Items{{URL: claims.URL}}, models.Options{}, true)
	if err := env.Store.InsertTicket(c.Request.Context(), ticket); err != nil {
		abortWithError(c, err)
		return
	}
	env.Monitor.RecordTicketGenerated()
	slog.Info("Stream ticket created from token", "ticket", ticket.ID, "client", client.Name)

	serveTicket(c, env, ticket, streamOverrides{
		ContentType: claims.ContentType,
		Headers:     claims.ResponseHeaders,
	})
}

// ParseStreamToken verifies token with the client secret and checks the url.
func ParseStreamToken(token, secret, algorithm string) (*StreamClaims, error) {
	claims := &StreamClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{algorithm}))
	if err != nil {
		return nil, err
	}
	if claims.URL == "" {
		return nil, errors.New("token has no url")
	}
	if err := utils.ValidateURL(claims.URL); err != nil {
		return nil, fmt.Errorf("token url: %w", err)
	}
	return claims, nil
}
