package http

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/store"
)

// StatsHandlers serves a read-only view of relay state.
type StatsHandlers struct {
	counters *metrics.Counters
	registry *core.Registry
	users    store.UserStore
	log      *zerolog.Logger
}

// NewStatsHandlers creates stats handlers. users may be nil.
func NewStatsHandlers(counters *metrics.Counters, registry *core.Registry, users store.UserStore, logger *zerolog.Logger) *StatsHandlers {
	return &StatsHandlers{
		counters: counters,
		registry: registry,
		users:    users,
		log:      logger,
	}
}

// StatsResponse represents the stats response body.
type StatsResponse struct {
	Metrics         map[string]int64 `json:"metrics"`
	Connected       []string         `json:"connected"`
	RegisteredUsers *int             `json:"registered_users,omitempty"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Stats returns counters, connected identifiers and the registered user count.
// GET /stats
func (h *StatsHandlers) Stats(c *gin.Context) {
	resp := StatsResponse{
		Metrics:   map[string]int64{},
		Connected: []string{},
	}
	if h.counters != nil {
		resp.Metrics = h.counters.Snapshot()
	}
	if h.registry != nil {
		resp.Connected = h.registry.Identifiers()
		sort.Strings(resp.Connected)
	}
	if h.users != nil {
		n, err := h.users.CountUsers(c.Request.Context())
		if err != nil {
			h.log.Error().Err(err).Msg("count users")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read user count"})
			return
		}
		resp.RegisteredUsers = &n
	}
	c.JSON(http.StatusOK, resp)
}
