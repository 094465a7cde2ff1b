package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RefreshHealth sets the gRPC health of the generator service from the providers' state.
func (a *API) RefreshHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if a.gs.Available(ctx) {
		st = healthpb.HealthCheckResponse_SERVING
	}

	a.hs.SetServingStatus(GeneratorService, st)
	return st
}

// WatchHealth refreshes the gRPC health every interval until ctx is done.
func (a *API) WatchHealth(ctx context.Context, interval time.Duration) {
	a.RefreshHealth(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.RefreshHealth(ctx)
		}
	}
}

// Shutdown marks every gRPC service as not serving.
func (a *API) Shutdown() {
	a.hs.Shutdown()
}

type healthResponse struct {
	Status    string `json:"status"`
	Generator bool   `json:"generator"`
	Database  bool   `json:"database"`
}

func (a *API) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	// The service answers from the static bank when nothing else works, so it is always up.
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Generator: a.RefreshHealth(ctx) == healthpb.HealthCheckResponse_SERVING,
		Database:  a.db.Ping(ctx) == nil,
	})
}
