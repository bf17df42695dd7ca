package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/storefront/internal/logging"
)

// Probe checks one dependency the service cannot run without.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// GRPCHandler serves grpc.health.v1.Health. It reports SERVING while every
// probe passes and NOT_SERVING otherwise.
type GRPCHandler struct {
	health   *health.Server
	probes   []Probe
	service  string
	interval time.Duration
	logger   *slog.Logger
}

func NewGRPCHandler(service string, probes []Probe, interval time.Duration, logger *slog.Logger) *GRPCHandler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &GRPCHandler{
		health:   health.NewServer(),
		probes:   probes,
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

func (h *GRPCHandler) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, h.health)
}

// Watch probes until ctx is done, updating the reported status after each round.
func (h *GRPCHandler) Watch(ctx context.Context) {
	h.probe(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

func (h *GRPCHandler) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for _, p := range h.probes {
		if err := p.Check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.logger.Warn("health probe failed", slog.String("probe", p.Name), logging.Err(err))
		}
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.service, status)
}

// Shutdown flips every service to NOT_SERVING so clients drain before the server stops.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
