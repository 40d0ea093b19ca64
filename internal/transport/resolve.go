package transport

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/utils"
)

// Details is the canonical form of a ticket item.
type Details struct {
	URL     string
	Name    string
	Path    string
	Headers map[string]string
	// NameExplicit is set when the ticket named the item itself; the
	// origin's content-disposition is ignored then.
	NameExplicit bool
}

// Entry is the item's location inside an archive.
func (d Details) Entry() string {
	if d.Path == "" {
		return d.Name
	}
	return path.Join(d.Path, d.Name)
}

// Resolve normalizes an item. It does no I/O.
func Resolve(item models.Item) (Details, error) {
	if strings.TrimSpace(item.URL) == "" {
		return Details{}, apperr.FieldError("url", "Missing data for required field.")
	}
	d := Details{
		URL:     item.URL,
		Path:    strings.Trim(item.Path, "/"),
		Headers: item.Headers,
	}
	if name := SanitizeName(item.Name); name != "" {
		d.Name = name
		d.NameExplicit = true
	} else {
		d.Name = NameFromURL(item.URL)
	}
	return d, nil
}

// ResolveValue accepts a bare URL string or a decoded JSON object.
func ResolveValue(v any) (Details, error) {
	switch t := v.(type) {
	case string:
		return Resolve(models.Item{URL: t})
	case models.Item:
		return Resolve(t)
	case map[string]any:
		item := models.Item{}
		item.URL, _ = t["url"].(string)
		item.Name, _ = t["name"].(string)
		item.Path, _ = t["path"].(string)
		if h, ok := t["headers"].(map[string]any); ok {
			item.Headers = make(map[string]string, len(h))
			for k, hv := range h {
				item.Headers[k] = fmt.Sprint(hv)
			}
		}
		return Resolve(item)
	default:
		return Details{}, apperr.FieldError("items", fmt.Sprintf("Unsupported item %T.", v))
	}
}

// ValidateItems resolves every item and checks its URL, reporting problems
// under "items".
func ValidateItems(items models.Items) error {
	var problems []string
	for i, item := range items {
		d, err := Resolve(item)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%d: url is required", i))
			continue
		}
		if err := utils.ValidateURL(d.URL); err != nil {
			problems = append(problems, fmt.Sprintf("%d: %v", i, err))
		}
	}
	if len(problems) > 0 {
		return apperr.NewValidation(map[string][]string{"items": problems})
	}
	return nil
}

// SanitizeName percent-decodes up to three times and keeps the last path
// segment. It returns "" when nothing usable remains.
func SanitizeName(name string) string {
	for i := 0; i < 3; i++ {
		decoded, err := url.QueryUnescape(name)
		if err != nil || decoded == name {
			break
		}
		name = decoded
	}
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasSuffix(name, "/") {
		return ""
	}
	base := path.Base(name)
	switch base {
	case ".", "..", "/":
		return ""
	}
	return strings.TrimSpace(base)
}

// NameFromURL uses the last path segment, then the hostname, then the URL.
func NameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if name := SanitizeName(rawURL); name != "" {
			return name
		}
		return rawURL
	}
	if name := SanitizeName(strings.TrimRight(u.EscapedPath(), "/")); name != "" {
		return name
	}
	if host := u.Hostname(); host != "" {
		return host
	}
	return rawURL
}
