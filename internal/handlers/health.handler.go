package handlers

import (
	xhttp "github.com/easypay/payment-gateway/pkg/http"
	"github.com/fasthttp/router"
)

type HealthService interface {
	Ping() error
}
type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	if h.svc != nil {
		if err := h.svc.Ping(); err != nil {
			writeText(ctx, 503, "unhealthy")
			return
		}
	}
	writeText(ctx, 200, "ok")
}
