package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/queue"
	"github.com/DataShades/fpx/internal/storage"
)

// WaitTicket upgrades to a websocket and pushes {position, available} until
// the ticket is admitted, the peer goes away, or the wait timeout expires.
func WaitTicket(c *gin.Context, env *Env) {
	id := c.Param("id")
	ticket, err := env.Store.GetTicket(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, apperr.NewNotFound("id", id))
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	server := websocket.Server{
		Handshake: checkOrigin(env.Config.CORSOrigins),
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			ctx, cancel := context.WithTimeout(c.Request.Context(), env.Timeouts.WaitTimeout)
			defer cancel()

			if ticket.IsAvailable {
				sendStatus(ws, queue.Status{Position: -1, Available: true})
				return
			}
			waitForAdmission(ctx, cancel, ws, env, id)
		},
	}
	server.ServeHTTP(c.Writer, c.Request)
}

func waitForAdmission(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, env *Env, id string) {
	logger := slog.With("ticket", id)

	w, st, err := env.Queue.Join(id)
	if errors.Is(err, queue.ErrAlreadyWaiting) {
		websocket.JSON.Send(ws, gin.H{"error": "Already waiting"})
		return
	}
	if err != nil {
		websocket.JSON.Send(ws, gin.H{"error": err.Error()})
		return
	}
	// runs on every exit path so an abandoned connection never holds a place
	defer w.Leave()
	defer env.Monitor.RecordWaiter()()

	// the peer never sends anything meaningful; a failed read means it left
	go func() {
		var msg string
		for {
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				cancel()
				return
			}
		}
	}()

	reported := false
	last := st.Position
	for {
		if st.Available {
			if err := env.Store.SetTicketAvailable(ctx, id); err != nil {
				logger.Warn("Admitted ticket vanished", "error", err)
				env.Queue.Release(id)
				websocket.JSON.Send(ws, gin.H{"error": "Ticket not found"})
				return
			}
			logger.Info("Ticket admitted", "position", st.Position)
			sendStatus(ws, st)
			return
		}
		if !reported || st.Position != last {
			if err := sendStatus(ws, st); err != nil {
				return
			}
			reported, last = true, st.Position
		}

		select {
		case <-ctx.Done():
			logger.Debug("Waiter left", "reason", ctx.Err())
			return
		case <-w.C():
			st = w.Poll()
		}
	}
}

func sendStatus(ws *websocket.Conn, st queue.Status) error {
	return websocket.JSON.Send(ws, st)
}

// checkOrigin accepts browsers from the configured CORS origins and clients
// that send no Origin at all.
func checkOrigin(allowed []string) func(*websocket.Config, *http.Request) error {
	return func(cfg *websocket.Config, req *http.Request) error {
		origin := req.Header.Get("Origin")
		if origin == "" {
			return nil
		}
		u, err := url.Parse(origin)
		if err != nil {
			return fmt.Errorf("bad origin %q: %w", origin, err)
		}
		cfg.Origin = u
		for _, a := range allowed {
			if a == "*" || a == origin {
				return nil
			}
		}
		return fmt.Errorf("origin %q is not allowed", origin)
	}
}
