package httpserver

import (
	"context"
	"net/http"
	"time"

	apierrors "github.com/lilgiftcorner/server/internal/errors"
	"github.com/lilgiftcorner/server/pkg/responders"
)

const healthPingTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	responders.Message(w, http.StatusOK, "Lil Gift Corner API")
}

// health pings every registered dependency. Any failure turns the response into a 503.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(serverStartTime).Round(time.Second).String(),
	}
	if len(h.Health) > 0 {
		resp.Checks = make(map[string]string, len(h.Health))
	}
	for _, check := range h.Health {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		err := check.Ping(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Checks[check.Name] = "error"
			h.logger.Warn().Err(err).Str("dependency", check.Name).Msg("health.check_failed")
			continue
		}
		resp.Checks[check.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	responders.JSON(w, status, resp)
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteSimpleError(w, apierrors.ErrCodeNotFound, "Not Found")
}

func (h *handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	resp := apierrors.NewErrorResponse(apierrors.ErrCodeInvalidRequest, "Method Not Allowed", map[string]interface{}{
		"method": r.Method,
	})
	resp.Write(w, http.StatusMethodNotAllowed)
}
