package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"docshare/pkg/logger"

	"github.com/heptiolabs/healthcheck"
)

const (
	dbPingTimeout      = 2 * time.Second
	maxGoroutines      = 1000
	databaseCheckName  = "database"
	goroutineCheckName = "goroutine-threshold"
)

type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// Health answers the plain /api/health probe.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Time: time.Now().UTC()}); err != nil {
		logger.Sugar.Errorf("Failed to encode health response: %v", err)
	}
}

// NewProbes returns the /live and /ready handler. Readiness fails while the
// database does not answer a ping.
func NewProbes(db *sql.DB) healthcheck.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck(goroutineCheckName, healthcheck.GoroutineCountCheck(maxGoroutines))
	if db != nil {
		health.AddReadinessCheck(databaseCheckName, healthcheck.DatabasePingCheck(db, dbPingTimeout))
	}
	return health
}
