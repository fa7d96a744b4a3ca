package issues

import (
	"context"
	"errors"
	"fmt"

	"github.com/automatesecurity/masat/internal/types"
)

// ErrNotFound is returned when an issue does not exist for a fingerprint.
var ErrNotFound = errors.New("issue not found")

// ErrConflict is returned when a manual update lost an optimistic
// concurrency race. Use errors.As with *ConflictError to retrieve the
// current stored issue for retry.
var ErrConflict = errors.New("issue update conflict")

// ConflictError carries the winning writer's stored issue so the losing
// caller can reconcile and retry.
type ConflictError struct {
	Current types.Issue
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("issue update conflict: %s is at version %d", e.Current.Fingerprint, e.Current.Version)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Filter restricts List results. Nil fields match everything. Filters are
// explicit per-request values; the store never reads ambient state.
type Filter struct {
	Status *types.Status
	Owner  *string
}

// Page is one page of issues plus the total count across all pages.
type Page struct {
	Items []types.Issue `json:"items"`
	Total int           `json:"total"`
}

// Stats summarizes triage state for posture scoring.
type Stats struct {
	Open      int // issues in a non-terminal status
	OpenOwned int // non-terminal issues with an owner assigned
}

// Store is the durable keyed issue repository. Implementations must make
// Atomically all-or-nothing: either every Put inside fn is applied or none
// is, and no other writer interleaves within one call.
type Store interface {
	Get(ctx context.Context, fingerprint string) (types.Issue, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]types.Issue, int, error)
	Stats(ctx context.Context) (Stats, error)
	Atomically(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write view inside one atomic block.
type Tx interface {
	Get(fingerprint string) (types.Issue, error)
	Put(issue types.Issue) error
}
