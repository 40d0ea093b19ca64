package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/DataShades/fpx/internal/config"
)

// Pinger is anything that can prove it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LookupFunc resolves a host name, e.g. dnscache.Resolver.LookupHost.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	CheckStore bool
	CheckDNS   bool
	// DNSHost is resolved by the DNS check.
	DNSHost string
	Timeout time.Duration
}

// DefaultHealthCheckConfig returns the startup checks run by the server
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		CheckStore: true,
		CheckDNS:   false,
		DNSHost:    "localhost",
		Timeout:    10 * time.Second,
	}
}

// HealthChecksFromConfig enables the DNS check when FPX_STARTUP_DNS_CHECK
// names a host.
func HealthChecksFromConfig(cfg config.Config) HealthCheckConfig {
	hc := DefaultHealthCheckConfig()
	if cfg.StartupDNSCheck != "" {
		hc.CheckDNS = true
		hc.DNSHost = cfg.StartupDNSCheck
	}
	return hc
}

// RunHealthChecks performs startup health checks
func RunHealthChecks(ctx context.Context, config HealthCheckConfig, store Pinger, lookup LookupFunc) error {
	if config.CheckStore {
		if err := CheckStoreAvailability(ctx, store, config.Timeout); err != nil {
			return fmt.Errorf("store health check failed: %w", err)
		}
	}

	if config.CheckDNS {
		if err := CheckDNSAvailability(ctx, lookup, config.DNSHost, config.Timeout); err != nil {
			return fmt.Errorf("dns health check failed: %w", err)
		}
	}

	return nil
}

// CheckStoreAvailability pings the ticket store within timeout.
func CheckStoreAvailability(ctx context.Context, store Pinger, timeout time.Duration) error {
	if store == nil {
		return fmt.Errorf("no store configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("store not reachable: %w", err)
	}
	return nil
}

// CheckDNSAvailability resolves host within timeout.
func CheckDNSAvailability(ctx context.Context, lookup LookupFunc, host string, timeout time.Duration) error {
	if lookup == nil {
		return fmt.Errorf("no resolver configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("cannot resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("no addresses for %s", host)
	}
	return nil
}
