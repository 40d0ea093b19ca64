package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ticket types understood by the pipes package.
const (
	TicketTypeZip    = "zip"
	TicketTypeStream = "stream"
)

// Ticket is a single-use grant to download a set of remote files.
type Ticket struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Type        string    `gorm:"size:32;not null"`
	Items       Items     `gorm:"type:text;not null"`
	Options     Options   `gorm:"type:text"`
	IsAvailable bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"index"`
}

// NewTicket builds an unsaved ticket with a fresh id.
func NewTicket(typ string, items Items, options Options, available bool) *Ticket {
	if options == nil {
		options = Options{}
	}
	return &Ticket{
		ID:          uuid.NewString(),
		Type:        typ,
		Items:       items,
		Options:     options,
		IsAvailable: available,
		CreatedAt:   time.Now().UTC(),
	}
}

// Public renders the fields exposed by the API. The id is only shown to the
// ticket's creator.
func (t *Ticket) Public(withID bool) map[string]any {
	out := map[string]any{
		"type":    t.Type,
		"created": t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if withID {
		out["id"] = t.ID
	}
	return out
}

// Client is an API credential. The ID doubles as the secret.
type Client struct {
	ID   string `gorm:"primaryKey;size:64"`
	Name string `gorm:"uniqueIndex;size:255;not null"`
}

// NewClient creates a client with a random 43 character secret.
func NewClient(name string) (*Client, error) {
	id, err := NewClientSecret()
	if err != nil {
		return nil, err
	}
	return &Client{ID: id, Name: name}, nil
}

func NewClientSecret() (string, error) {
	return gonanoid.New(43)
}

// Item is one remote file referenced by a ticket. It decodes from either a
// bare URL string or an object.
type Item struct {
	URL     string            `json:"url"`
	Name    string            `json:"name,omitempty"`
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*i = Item{URL: raw}
		return nil
	}
	type plain Item
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("item must be a URL or an object: %w", err)
	}
	*i = Item(p)
	return nil
}

// Items is stored as a JSON text column.
type Items []Item

func (it Items) Value() (driver.Value, error) {
	if it == nil {
		it = Items{}
	}
	b, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (it *Items) Scan(src any) error {
	return scanJSON(src, it)
}

// Options is the free-form mapping attached to a ticket.
type Options map[string]any

func (o Options) Value() (driver.Value, error) {
	if o == nil {
		o = Options{}
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *Options) Scan(src any) error {
	return scanJSON(src, o)
}

// String returns options[key] when it is a non-empty string.
func (o Options) String(key string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return ""
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}
