package handlers

import (
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-seed/pkg/config"
)

const serviceName = "ekaya-seed"

// PingResponse describes the running service and the defaults applied to
// seed requests that leave them out.
type PingResponse struct {
	Status      string   `json:"status"`
	Service     string   `json:"service"`
	Version     string   `json:"version"`
	GoVersion   string   `json:"go_version"`
	Environment string   `json:"environment"`
	Uptime      string   `json:"uptime"`
	Defaults    Defaults `json:"defaults"`
}

// Defaults are the generation settings taken from configuration.
type Defaults struct {
	Dialect           string `json:"dialect"`
	IDMode            string `json:"id_mode"`
	AutoincrementBase int    `json:"autoincrement_base"`
	Model             string `json:"model"`
	Provider          string `json:"provider"`
	// ServerCredential is true when requests without their own key can run.
	ServerCredential bool `json:"server_credential"`
}

// HealthHandler serves liveness and service information.
type HealthHandler struct {
	cfg     *config.Config
	started time.Time
	logger  *zap.Logger
}

func NewHealthHandler(cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, started: time.Now(), logger: logger}
}

func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. It never touches the model provider.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	model := h.cfg.LLM.Model
	response := PingResponse{
		Status:      "ok",
		Service:     serviceName,
		Version:     h.cfg.Version,
		GoVersion:   runtime.Version(),
		Environment: h.cfg.Env,
		Uptime:      time.Since(h.started).Truncate(time.Second).String(),
		Defaults: Defaults{
			Dialect:           h.cfg.Seed.Dialect,
			IDMode:            h.cfg.Seed.IDMode,
			AutoincrementBase: h.cfg.Seed.AutoincrementBase,
			Model:             model,
			Provider:          h.cfg.ProviderFor(model),
			ServerCredential:  h.cfg.APIKeyFor(model) != "",
		},
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
