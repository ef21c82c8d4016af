package datastore

import (
	"context"
	"fmt"
)

// Snapshot writes a consistent copy of the database to dest, which must not
// exist. It is queued like any other mutation, so it observes every write
// enqueued before it.
func (e *Engine) Snapshot(ctx context.Context, dest string) error {
	if err := e.submit(ctx, "snapshot", "VACUUM INTO ?", nil, dest); err != nil {
		return fmt.Errorf("datastore: snapshot: %w", err)
	}
	return nil
}
