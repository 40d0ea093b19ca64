package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateURL checks that an item URL is absolute http(s) with a hostname.
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %v", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("only HTTP and HTTPS protocols are allowed")
	}

	if parsedURL.Hostname() == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// ErrPrivateAddress is returned by CheckAddress for internal destinations.
var ErrPrivateAddress = errors.New("requests to private/internal IP addresses are not allowed")

// CheckAddress rejects loopback, private, link-local and multicast IPs.
func CheckAddress(ip net.IP) error {
	if ip == nil {
		return fmt.Errorf("invalid IP address")
	}
	if isPrivateIP(ip) {
		return ErrPrivateAddress
	}
	return nil
}

// isPrivateIP checks if an IP address is in a private/internal range
func isPrivateIP(ip net.IP) bool {
	if ip.IsUnspecified() {
		return true
	}

	privateRanges := []string{
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"127.0.0.0/8",    // Loopback
		"169.254.0.0/16", // Link-local
		"224.0.0.0/4",    // Multicast
		"240.0.0.0/4",    // Reserved
	}

	ipv6PrivateRanges := []string{
		"::1/128",   // Loopback
		"fe80::/10", // Link-local
		"fc00::/7",  // Unique local
		"ff00::/8",  // Multicast
	}

	ranges := ipv6PrivateRanges
	if ip.To4() != nil {
		ranges = privateRanges
	}
	for _, rangeStr := range ranges {
		_, privateNet, _ := net.ParseCIDR(rangeStr)
		if privateNet.Contains(ip) {
			return true
		}
	}

	return false
}

// GenerateRequest is the decoded body of a ticket generation request.
type GenerateRequest struct {
	Type      string `json:"type" validate:"required,oneof=zip stream"`
	ItemCount int    `json:"-" validate:"min=1"`
}

// Validate returns per-field messages, or nil when the request is valid.
// A stream ticket must carry exactly one item; that is reported on "type".
func (r *GenerateRequest) Validate() map[string][]string {
	problems := map[string][]string{}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				field, msg := fieldMessage(fe)
				problems[field] = append(problems[field], msg)
			}
		} else {
			problems["type"] = append(problems["type"], err.Error())
		}
	}

	if r.Type == "stream" && r.ItemCount != 1 {
		problems["type"] = append(problems["type"], "Stream ticket must contain exactly one item")
	}

	if len(problems) == 0 {
		return nil
	}
	return problems
}

func fieldMessage(fe validator.FieldError) (string, string) {
	switch fe.StructField() {
	case "ItemCount":
		return "items", "At least one item is required"
	case "Type":
		if fe.Tag() == "required" {
			return "type", "Missing data for required field."
		}
		return "type", fmt.Sprintf("Must be one of: zip, stream; got %q.", fe.Value())
	default:
		return strings.ToLower(fe.Field()), fe.Error()
	}
}
