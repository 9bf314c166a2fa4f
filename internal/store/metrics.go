package store

import (
	"context"
	"time"

	"gitea.jw6.us/james/crmdesk/internal/metrics"
)

// observeDB starts a latency measurement for one backend call. The returned
// func records it against the crmdesk_store_latency_seconds histogram, labelled
// with the chi route that triggered the call.
func observeDB(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveStoreLatency(ctx, operation, start)
	}
}
