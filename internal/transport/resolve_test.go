package transport

import (
	"errors"
	"testing"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/models"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"dir/report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"my%20file.txt", "my file.txt"},
		{"my%2520file.txt", "my file.txt"},
		{"a%25252Fb", "b"},
		{"plus+sign.txt", "plus sign.txt"},
		{"..", ""},
		{"dir/", ""},
		{"", ""},
		{`C:\data\file.csv`, "file.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://x/a.bin", "a.bin"},
		{"http://x/files/a%20b.bin?download=1", "a b.bin"},
		{"http://x/files/dir/", "dir"},
		{"http://example.com", "example.com"},
		{"http://example.com/", "example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := NameFromURL(tt.url); got != tt.want {
				t.Errorf("NameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	d, err := Resolve(models.Item{URL: "http://x/path/a.bin", Path: "/sub/dir/"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "a.bin" || d.NameExplicit {
		t.Errorf("unexpected name %q explicit=%v", d.Name, d.NameExplicit)
	}
	if d.Entry() != "sub/dir/a.bin" {
		t.Errorf("Entry() = %q", d.Entry())
	}

	d, err = Resolve(models.Item{URL: "http://x/a.bin", Name: "custom%2Ename"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "custom.name" || !d.NameExplicit {
		t.Errorf("explicit name not kept: %+v", d)
	}

	_, err = Resolve(models.Item{Name: "nourl"})
	if !errors.Is(err, apperr.Validation) {
		t.Errorf("missing url should be a validation error, got %v", err)
	}
}

func TestResolveValue(t *testing.T) {
	d, err := ResolveValue("http://x/a.bin")
	if err != nil || d.URL != "http://x/a.bin" || d.Name != "a.bin" {
		t.Fatalf("bare URL: %+v, %v", d, err)
	}

	d, err = ResolveValue(map[string]any{
		"url":     "http://x/a.bin",
		"name":    "b.bin",
		"path":    "p",
		"headers": map[string]any{"X-Key": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Entry() != "p/b.bin" || d.Headers["X-Key"] != "1" {
		t.Errorf("mapping: %+v", d)
	}

	if _, err := ResolveValue(map[string]any{"name": "x"}); err == nil {
		t.Error("mapping without url must fail")
	}
	if _, err := ResolveValue(42); err == nil {
		t.Error("unsupported value must fail")
	}
}

func TestValidateItems(t *testing.T) {
	err := ValidateItems(models.Items{{URL: "http://ok/a"}, {URL: "ftp://bad/b"}, {URL: ""}})
	e, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected apperr, got %v", err)
	}
	if msgs, _ := e.Details["items"].([]string); len(msgs) != 2 {
		t.Errorf("expected two problems, got %v", e.Details)
	}
}

func TestNameFromDisposition(t *testing.T) {
	tests := map[string]string{
		`attachment; filename="real.bin"`:        "real.bin",
		`attachment; filename="../x/real%20.bin"`: "real .bin",
		`attachment; filename=plain.txt`:          "plain.txt",
		`inline`:                                  "",
		``:                                        "",
	}
	for in, want := range tests {
		if got := NameFromDisposition(in); got != want {
			t.Errorf("NameFromDisposition(%q) = %q, want %q", in, got, want)
		}
	}
}
