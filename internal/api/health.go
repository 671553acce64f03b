package api

import (
	"net/http"
	"runtime/debug"
)

// version is the reported build version, overridable at link time with
// -ldflags "-X .../internal/api.version=v1.2.3". Without it the module
// version from build info is used.
var version = ""

// HealthResponse is the liveness probe body. Readiness against the broker
// and database lives under /api/v1/queue/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthHandler returns the liveness handler.
func HealthHandler() http.HandlerFunc {
	v := buildVersion()
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{
			Status:  "healthy",
			Service: "bulk-email-sender",
			Version: v,
		})
	}
}

func buildVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "devel"
}
