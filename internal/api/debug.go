package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"cvrpsolver/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"go":    runtime.Version(),
		"config": map[string]any{
			"PORT":                 os.Getenv("PORT"),
			"RATE_RPS":             os.Getenv("RATE_RPS"),
			"RATE_BURST":           os.Getenv("RATE_BURST"),
			"SOLVER_WORKERS":       cap(s.slots),
			"WEBHOOK_MAX_ATTEMPTS": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
			"CONFIG_PATH":          os.Getenv("CONFIG_PATH"),
			"HAS_DATABASE_URL":     os.Getenv("DATABASE_URL") != "",
			"HAS_SQLITE_PATH":      os.Getenv("SQLITE_PATH") != "",
			"HAS_REDIS_URL":        os.Getenv("REDIS_URL") != "",
		},
	}
	writeJSON(w, http.StatusOK, info)
}
