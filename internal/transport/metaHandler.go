package transport

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type MetaHandler struct {
	version string
	checks  map[string]HealthCheck
}

func NewMetaHandler(version string, checks map[string]HealthCheck) *MetaHandler {
	return &MetaHandler{version: version, checks: checks}
}

// Labels serves the enum -> display label table.
func (h *MetaHandler) Labels(c *gin.Context) {
	respondOK(c, http.StatusOK, "Labels retrieved successfully", entity.Labels)
}

func (h *MetaHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"version":    h.version,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
