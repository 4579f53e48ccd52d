package xconf

import (
	"fmt"
	"time"

	"github.com/leftonspace/CampoTech-sub005/pkg/resilience/xbreaker"
	"github.com/leftonspace/CampoTech-sub005/pkg/resilience/xretry"
)

// GatewayConfig is the typed configuration for the dependency gateway:
// one ServiceConfig per wrapped dependency plus the shared usage and
// budget settings.
type GatewayConfig struct {
	Services map[string]ServiceConfig `koanf:"services"`
	Usage    UsageConfig              `koanf:"usage"`
}

// ServiceConfig tunes one dependency facade.
type ServiceConfig struct {
	Breaker BreakerConfig `koanf:"breaker"`
	Retry   RetryConfig   `koanf:"retry"`
	// Timeout is the hard per-operation bound; 30s when zero.
	Timeout time.Duration `koanf:"timeout"`
	// AutoFallback degrades exhausted failures into fallback payloads.
	// Defaults to true; set the pointer to override.
	AutoFallback *bool `koanf:"auto_fallback"`
	// WebhookSecret enables HMAC verification of inbound webhooks.
	WebhookSecret string `koanf:"webhook_secret"`
	// FallbackTTL ages out unhandled fallback records; 24h when zero.
	FallbackTTL time.Duration `koanf:"fallback_ttl"`
}

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenDuration     time.Duration `koanf:"open_duration"`
	SuccessThreshold uint32        `koanf:"success_threshold"`
	HalfOpenRequests uint32        `koanf:"half_open_requests"`
}

// RetryConfig tunes a retry executor.
type RetryConfig struct {
	MaxAttempts uint          `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	Jitter      float64       `koanf:"jitter"`
}

// UsageConfig holds budget limits and pricing.
type UsageConfig struct {
	// DefaultLimits apply to organizations without an override.
	DefaultLimits BudgetLimits `koanf:"default_limits"`
	// OrgLimits override limits per organization ID.
	OrgLimits map[string]BudgetLimits `koanf:"org_limits"`
	// Rates price usage per model or operation kind.
	Rates map[string]PriceRate `koanf:"rates"`
}

// BudgetLimits caps spend per window; zero means uncapped.
type BudgetLimits struct {
	Daily   float64 `koanf:"daily"`
	Monthly float64 `koanf:"monthly"`
}

// PriceRate prices one model or operation kind.
type PriceRate struct {
	InputPer1K  float64 `koanf:"input_per_1k"`
	OutputPer1K float64 `koanf:"output_per_1k"`
	PerMinute   float64 `koanf:"per_minute"`
}

// LoadGateway unmarshals and validates the "gateway" subtree.
func LoadGateway(cfg Config) (*GatewayConfig, error) {
	var gw GatewayConfig
	if err := cfg.Unmarshal("gateway", &gw); err != nil {
		return nil, err
	}
	if err := gw.Validate(); err != nil {
		return nil, err
	}
	return &gw, nil
}

// Validate rejects configurations that would misbehave silently.
func (c *GatewayConfig) Validate() error {
	for name, svc := range c.Services {
		if svc.Timeout < 0 {
			return fmt.Errorf("xconf: service %s: negative timeout", name)
		}
		if svc.Retry.Jitter < 0 || svc.Retry.Jitter > 1 {
			return fmt.Errorf("xconf: service %s: jitter must be within [0, 1]", name)
		}
		if svc.Breaker.OpenDuration < 0 {
			return fmt.Errorf("xconf: service %s: negative open duration", name)
		}
	}
	for org, limits := range c.Usage.OrgLimits {
		if limits.Daily < 0 || limits.Monthly < 0 {
			return fmt.Errorf("xconf: org %s: negative budget limit", org)
		}
	}
	if c.Usage.DefaultLimits.Daily < 0 || c.Usage.DefaultLimits.Monthly < 0 {
		return fmt.Errorf("xconf: negative default budget limit")
	}
	for key, rate := range c.Usage.Rates {
		if rate.InputPer1K < 0 || rate.OutputPer1K < 0 || rate.PerMinute < 0 {
			return fmt.Errorf("xconf: rate %s: negative price", key)
		}
	}
	return nil
}

// Service returns the named service config, zero-valued when absent so
// every knob falls back to its default.
func (c *GatewayConfig) Service(name string) ServiceConfig {
	return c.Services[name]
}

// BreakerOptions maps the config onto breaker options, leaving
// zero-valued knobs at their defaults.
func (s ServiceConfig) BreakerOptions() []xbreaker.Option {
	var opts []xbreaker.Option
	if s.Breaker.FailureThreshold > 0 {
		opts = append(opts, xbreaker.WithFailureThreshold(s.Breaker.FailureThreshold))
	}
	if s.Breaker.OpenDuration > 0 {
		opts = append(opts, xbreaker.WithOpenDuration(s.Breaker.OpenDuration))
	}
	if s.Breaker.SuccessThreshold > 0 {
		opts = append(opts, xbreaker.WithSuccessThreshold(s.Breaker.SuccessThreshold))
	}
	if s.Breaker.HalfOpenRequests > 0 {
		opts = append(opts, xbreaker.WithHalfOpenRequests(s.Breaker.HalfOpenRequests))
	}
	return opts
}

// RetryOptions maps the config onto executor options.
func (s ServiceConfig) RetryOptions() []xretry.ExecutorOption {
	var opts []xretry.ExecutorOption
	if s.Retry.MaxAttempts > 0 {
		opts = append(opts, xretry.WithMaxAttempts(s.Retry.MaxAttempts))
	}
	if s.Retry.BaseDelay > 0 {
		opts = append(opts, xretry.WithBaseDelay(s.Retry.BaseDelay))
	}
	if s.Retry.MaxDelay > 0 {
		opts = append(opts, xretry.WithMaxDelay(s.Retry.MaxDelay))
	}
	if s.Retry.Jitter > 0 {
		opts = append(opts, xretry.WithJitter(s.Retry.Jitter))
	}
	return opts
}

// AutoFallbackEnabled resolves the optional override, defaulting to true.
func (s ServiceConfig) AutoFallbackEnabled() bool {
	if s.AutoFallback == nil {
		return true
	}
	return *s.AutoFallback
}
