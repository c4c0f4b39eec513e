package telemetry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/infra/config"
)

// Provider bundles process-wide telemetry state.
type Provider struct {
	tracing *TracerProvider
}

// Attach configures telemetry exporters and returns a provider handle.
// Tracing is optional: an empty OTLP endpoint leaves it disabled.
func Attach(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	p := &Provider{}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := NewTracerProvider(ctx, cfg.Telemetry, logger)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		p.tracing = tp
	}

	return p, nil
}

// Shutdown flushes and releases telemetry resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracing == nil {
		return nil
	}
	return p.tracing.Shutdown(ctx)
}
