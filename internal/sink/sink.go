// Package sink persists named report artifacts. Existence checks and writes
// are the only operations the acquisition engine needs; artifact presence is
// the sole completion record for backfill, so writes must be all-or-nothing.
package sink

import "context"

// Sink persists named artifacts.
type Sink interface {
	// Exists reports whether an artifact with the given name is present.
	Exists(ctx context.Context, name string) (bool, error)
	// Write persists the artifact atomically. Re-writing the same content
	// under the same name is safe.
	Write(ctx context.Context, name string, data []byte) error
}
