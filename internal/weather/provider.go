package weather

import (
	"context"
	"fmt"
)

// Provider abstracts the upstream weather source. It returns a fully
// normalized snapshot or an UpstreamError; there are no partial results.
type Provider interface {
	Name() string
	FetchSnapshot(ctx context.Context, city string, units Units) (Snapshot, error)
}

// UpstreamError reports a non-success response from the weather provider,
// carrying which call failed and the raw error body for diagnostics.
type UpstreamError struct {
	Call   string // "current" or "forecast"
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s call failed with status %d: %s", e.Call, e.Status, e.Body)
}
