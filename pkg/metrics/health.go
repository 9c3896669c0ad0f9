package metrics

import (
	"time"

	"github.com/heptiolabs/healthcheck"
)

const readinessTimeout = 2 * time.Second

// NewHealth returns a handler answering LivePath with the live check and ReadyPath with
// both checks. A slow ready check counts as failed.
func NewHealth(live, ready func() error) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("scheduler", live)
	h.AddReadinessCheck("backup-root", healthcheck.Timeout(ready, readinessTimeout))
	return h
}
