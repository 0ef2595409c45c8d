package core

import "context"

// Persister flushes dispatcher state after accepted mutations.
type Persister interface {
	// Schedule requests an asynchronous snapshot write. It never blocks;
	// requests arriving while a write is in flight coalesce into the next
	// write, so no accepted mutation is ever dropped.
	Schedule()

	// SaveNow writes a snapshot synchronously. Used on shutdown and by
	// fixtures that need to inspect the persisted state.
	SaveNow(ctx context.Context) error
}
