package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DataShades/fpx/internal/config"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRunHealthChecks(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	slow := pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	resolves := func(context.Context, string) ([]string, error) { return []string{"127.0.0.1"}, nil }
	empty := func(context.Context, string) ([]string, error) { return nil, nil }

	config := DefaultHealthCheckConfig()
	if err := RunHealthChecks(context.Background(), config, healthy, nil); err != nil {
		t.Errorf("Expected healthy store to pass, got %v", err)
	}
	if err := RunHealthChecks(context.Background(), config, down, nil); err == nil {
		t.Error("Expected failing store to fail the checks")
	}

	config.Timeout = 20 * time.Millisecond
	if err := RunHealthChecks(context.Background(), config, slow, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected a timeout, got %v", err)
	}

	config = DefaultHealthCheckConfig()
	config.CheckDNS = true
	if err := RunHealthChecks(context.Background(), config, healthy, resolves); err != nil {
		t.Errorf("Expected DNS check to pass, got %v", err)
	}
	if err := RunHealthChecks(context.Background(), config, healthy, empty); err == nil {
		t.Error("Expected DNS check without addresses to fail")
	}
}

func TestHealthChecksFromConfig(t *testing.T) {
	hc := HealthChecksFromConfig(config.Config{})
	if hc.CheckDNS {
		t.Error("Expected DNS check to be off without a host")
	}
	if !hc.CheckStore {
		t.Error("Expected store check to stay on")
	}

	hc = HealthChecksFromConfig(config.Config{StartupDNSCheck: "origin.example.com"})
	if !hc.CheckDNS || hc.DNSHost != "origin.example.com" {
		t.Errorf("Expected DNS check of origin.example.com, got %+v", hc)
	}

	var looked string
	lookup := func(_ context.Context, host string) ([]string, error) {
		looked = host
		return []string{"192.0.2.1"}, nil
	}
	pinger := pingFunc(func(context.Context) error { return nil })
	if err := RunHealthChecks(context.Background(), hc, pinger, lookup); err != nil {
		t.Errorf("Expected checks to pass, got %v", err)
	}
	if looked != "origin.example.com" {
		t.Errorf("Expected lookup of origin.example.com, got %q", looked)
	}
}
