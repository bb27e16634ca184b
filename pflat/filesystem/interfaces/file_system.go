package interfaces

import (
	"context"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filemap"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

// FlattenService defines the tree to flat directory pipeline
type FlattenService interface {
	Run(ctx context.Context, opts options.FlattenOptions, emit types.EmitFunc) (*types.FlattenResult, []filemap.Record, error)
}

// RestoreService defines the flat directory to tree pipeline
type RestoreService interface {
	Run(ctx context.Context, opts options.RestoreOptions, emit types.EmitFunc) (*types.RestoreResult, error)
	Preview(ctx context.Context, opts options.RestoreOptions) ([]types.RestorePreviewItem, error)
}

// ConflictResolver defines flat name collision handling
type ConflictResolver interface {
	// Resolve returns base, or base with a numeric suffix when it is taken.
	Resolve(base string, existing NameLookup) string
}

// NameLookup reports whether a name is already taken
type NameLookup interface {
	Has(name string) bool
}
