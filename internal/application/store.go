package application

import (
	"context"

	"github.com/trailhq/jobtrail/internal/workflow"
)

// Store defines the interface for application persistence
type Store interface {
	// List returns all applications, oldest DateApplied first
	List(ctx context.Context) ([]*Application, error)

	// Get retrieves an application by id
	Get(ctx context.Context, id string) (*Application, error)

	// Add creates a new application from a draft, assigning an id and
	// seeding the audit log with the creation entry
	Add(ctx context.Context, draft Draft) (*Application, error)

	// UpdateFields merges a partial update of non-stage fields. It
	// never appends an audit entry.
	UpdateFields(ctx context.Context, id string, patch FieldPatch) (*Application, error)

	// Delete removes an application and its logs permanently
	Delete(ctx context.Context, id string) error

	// Mutate runs fn against the stored application inside a single
	// write transaction and persists the result. fn may return
	// ErrUnchanged to skip the write; any other error aborts the
	// transaction with nothing committed.
	Mutate(ctx context.Context, id string, fn func(*Application) error) (*Application, error)

	// CountByStage returns how many applications currently reference
	// the given stage name
	CountByStage(ctx context.Context, stage string) (int, error)

	// StageCounts returns current application counts grouped by stage
	StageCounts(ctx context.Context) (map[string]int, error)

	// RewriteStage renames stage references on current applications
	// (audit logs keep the historical name). Returns the number of
	// applications touched.
	RewriteStage(ctx context.Context, from, to string) (int, error)

	// Version is a monotonic counter bumped on every committed
	// mutation; analytics uses it as a cache key
	Version() uint64

	// Close closes the storage connection
	Close() error
}

// StageResolver validates stage names against the workflow definition.
// Implemented by workflow.Manager.
type StageResolver interface {
	StageByName(name string) (workflow.Stage, error)
}
