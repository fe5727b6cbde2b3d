package checkpoint

import "context"

// Store persists job state. Implementations must treat expired records as
// absent on every read path; physical deletion happens in Cleanup.
//
// Load methods return (nil, nil) when nothing usable exists; errors are
// reserved for the backend actually failing.
type Store interface {
	// Save upserts the state by job id and refreshes its expiry.
	Save(ctx context.Context, state *State) error
	// Load returns the state for a job id, or nil when absent or expired.
	Load(ctx context.Context, jobID string) (*State, error)
	// LoadActiveForServer returns the most recently updated non-expired
	// state for the server whose status is still running or paused.
	LoadActiveForServer(ctx context.Context, serverID int) (*State, error)
	// Cleanup deletes expired records and reports how many went away.
	Cleanup(ctx context.Context) (int64, error)
}
