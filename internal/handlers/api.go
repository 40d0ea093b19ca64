package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/pipes"
	"github.com/DataShades/fpx/internal/storage"
	"github.com/DataShades/fpx/internal/transport"
	"github.com/DataShades/fpx/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TicketsPerPage is the page size of the ticket index.
const TicketsPerPage = 10

// TicketIndex lists tickets without their ids.
func TicketIndex(c *gin.Context, env *Env) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, apperr.FieldError("page", "Not a valid integer."))
			return
		}
		page = p
	}
	if page < 1 {
		abortWithError(c, apperr.FieldError("page", "Must be greater than or equal to 1."))
		return
	}

	tickets, total, err := env.Store.ListTickets(c.Request.Context(), (page-1)*TicketsPerPage, TicketsPerPage)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out := make([]map[string]any, 0, len(tickets))
	for i := range tickets {
		out = append(out, tickets[i].Public(false))
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "count": total, "tickets": out})
}

type generateBody struct {
	Type    *string             `json:"type"`
	Items   jsoniter.RawMessage `json:"items"`
	Options jsoniter.RawMessage `json:"options"`
}

// GenerateTicket validates and stores a new ticket for the current client.
func GenerateTicket(c *gin.Context, env *Env) {
	raw, err := c.GetRawData()
	if err != nil {
		abortWithError(c, err)
		return
	}
	var body generateBody
	if err := json.Unmarshal(raw, &body); err != nil {
		abortWithError(c, apperr.FieldError("_schema", "Invalid input type."))
		return
	}

	problems := map[string][]string{}
	items, msg := decodeItems(body.Items)
	if msg != "" {
		problems["items"] = append(problems["items"], msg)
	}
	options, msg := decodeOptions(body.Options)
	if msg != "" {
		problems["options"] = append(problems["options"], msg)
	}

	req := utils.GenerateRequest{ItemCount: len(items)}
	if body.Type != nil {
		req.Type = *body.Type
	}
	if problems["items"] == nil {
		if err := transport.ValidateItems(items); err != nil {
			mergeProblems(problems, err)
		}
	}
	for field, msgs := range req.Validate() {
		if field == "items" && len(problems["items"]) > 0 {
			continue
		}
		problems[field] = append(problems[field], msgs...)
	}
	if len(problems) > 0 {
		abortWithError(c, apperr.NewValidation(problems))
		return
	}

	ticket := models.NewTicket(req.Type, items, options, env.Config.NoQueue)
	if err := env.Store.InsertTicket(c.Request.Context(), ticket); err != nil {
		abortWithError(c, err)
		return
	}
	env.Monitor.RecordTicketGenerated()

	client := ""
	if cl := currentClient(c); cl != nil {
		client = cl.Name
	}
	slog.Info("Ticket generated", "ticket", ticket.ID, "type", ticket.Type, "items", len(items), "client", client)

	resp := ticket.Public(true)
	resp["items"] = ticket.Items
	c.JSON(http.StatusOK, resp)
}

// decodeJSONField accepts the value itself or a base64 string holding it.
func decodeJSONField(raw jsoniter.RawMessage, dst any) string {
	data := []byte(raw)
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		decoded, err := decodeBase64(encoded)
		if err != nil {
			return "Not a valid base64 string."
		}
		data = decoded
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return "Not a valid JSON."
	}
	return ""
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}

func decodeItems(raw jsoniter.RawMessage) (models.Items, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, "Missing data for required field."
	}
	var values []jsoniter.RawMessage
	if msg := decodeJSONField(raw, &values); msg != "" {
		if msg == "Not a valid JSON." {
			return nil, "Must be a list of URLs or item objects."
		}
		return nil, msg
	}
	items := make(models.Items, 0, len(values))
	for i, v := range values {
		var item models.Item
		if err := json.Unmarshal(v, &item); err != nil {
			return nil, fmt.Sprintf("%d: must be a URL or an object with url.", i)
		}
		items = append(items, item)
	}
	return items, ""
}

func decodeOptions(raw jsoniter.RawMessage) (models.Options, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.Options{}, ""
	}
	var options models.Options
	if msg := decodeJSONField(raw, &options); msg != "" {
		if msg == "Not a valid JSON." {
			return nil, "Must be a mapping."
		}
		return nil, msg
	}
	if options == nil {
		options = models.Options{}
	}
	return options, ""
}

func mergeProblems(problems map[string][]string, err error) {
	e, ok := apperr.As(err)
	if !ok {
		problems["_schema"] = append(problems["_schema"], err.Error())
		return
	}
	for field, v := range e.Details {
		switch msgs := v.(type) {
		case []string:
			problems[field] = append(problems[field], msgs...)
		default:
			problems[field] = append(problems[field], fmt.Sprint(msgs))
		}
	}
}

// DownloadTicket streams an available ticket and deletes it first.
func DownloadTicket(c *gin.Context, env *Env) {
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
	if !ticket.IsAvailable {
		abortWithError(c, apperr.NewNotAuthorized("Ticket is not available yet"))
		return
	}

	serveTicket(c, env, ticket, streamOverrides{})
}

// streamOverrides adjust the response of ad-hoc stream tickets.
type streamOverrides struct {
	ContentType string
	Headers     map[string]string
}

// serveTicket opens the pipe, deletes the ticket, then streams. The delete
// must succeed before any body byte goes out; losing the race to another
// download of the same ticket is a 404.
func serveTicket(c *gin.Context, env *Env, ticket *models.Ticket, override streamOverrides) {
	ctx := c.Request.Context()

	cfg := env.pipeConfig()
	cfg.ContentType = override.ContentType
	pipe, err := pipes.Select(ticket, cfg)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer pipe.Close()

	meta, err := pipe.Open(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}

	deleted, err := env.Store.DeleteTicket(ctx, ticket.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !deleted {
		abortWithError(c, apperr.NewNotFound("id", ticket.ID))
		return
	}

	env.Queue.Acquire(ticket.ID)
	defer env.Queue.Release(ticket.ID)
	finish := env.Monitor.RecordDownloadStart(ticket.ID)

	c.Header("Content-Type", meta.ContentType)
	c.Header("Content-Disposition", contentDisposition(meta.Filename))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Accel-Buffering", "no")
	for k, v := range override.Headers {
		c.Header(k, v)
	}
	c.Status(http.StatusOK)

	err = pipe.Stream(ctx, c.Writer)
	finish(int64(max(c.Writer.Size(), 0)), err)
	if err == nil {
		return
	}
	if !c.Writer.Written() {
		// nothing was sent yet, so the client still gets a proper error
		for _, h := range []string{"Content-Type", "Content-Disposition", "Cache-Control", "X-Accel-Buffering"} {
			c.Writer.Header().Del(h)
		}
		abortWithError(c, err)
		return
	}
	// Headers already sent, can't change status
	slog.Error("Download aborted mid-stream", "ticket", ticket.ID, "bytes", c.Writer.Size(), "error", err)
	c.Abort()
}

func contentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii, url.PathEscape(filename))
}
