// Package registry is the reference registry for methodologies, projects
// and baselines. Entries are keyed by a 256-bit id and carry a semantic
// version that may only move forward.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// ErrNotFound is returned by backends for unknown ids.
var ErrNotFound = errors.New("reference not found")

// Backend persists references.
type Backend interface {
	Put(ctx context.Context, ref contracts.Reference) error
	Get(ctx context.Context, id contracts.RefID) (contracts.Reference, error)
	List(ctx context.Context) ([]contracts.Reference, error)
}

// Registry validates references before they reach the backend.
type Registry struct {
	backend Backend
}

func New(b Backend) *Registry {
	return &Registry{backend: b}
}

// CheckUpsert validates ref against the stored entry, if any.
func (r *Registry) CheckUpsert(ctx context.Context, ref contracts.Reference) error {
	const op = "upsert_reference"
	if ref.ID.IsZero() {
		return contracts.Errorf(contracts.KindInvalidInput, op, "reference id is required")
	}
	if ref.Name == "" {
		return contracts.Errorf(contracts.KindInvalidInput, op, "reference name is required")
	}
	next, err := semver.NewVersion(ref.Version)
	if err != nil {
		return contracts.Errorf(contracts.KindInvalidInput, op, "version %q: %v", ref.Version, err)
	}
	cur, err := r.backend.Get(ctx, ref.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: load %s: %w", ref.ID, err)
	}
	prev, err := semver.NewVersion(cur.Version)
	if err != nil {
		// stored data predates validation; allow the overwrite
		return nil
	}
	if next.LessThan(prev) {
		return contracts.Errorf(contracts.KindInvalidInput, op, "version %s is older than stored %s", next, prev)
	}
	return nil
}

// Upsert stores ref after CheckUpsert. The version is normalized.
func (r *Registry) Upsert(ctx context.Context, ref contracts.Reference) (contracts.Reference, error) {
	if err := r.CheckUpsert(ctx, ref); err != nil {
		return contracts.Reference{}, err
	}
	v, _ := semver.NewVersion(ref.Version)
	ref.Version = v.String()
	if err := r.backend.Put(ctx, ref); err != nil {
		return contracts.Reference{}, fmt.Errorf("registry: put %s: %w", ref.ID, err)
	}
	return ref, nil
}

// Get returns NOT_FOUND for unknown ids.
func (r *Registry) Get(ctx context.Context, id contracts.RefID) (contracts.Reference, error) {
	ref, err := r.backend.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return contracts.Reference{}, contracts.Errorf(contracts.KindNotFound, "get_reference", "no reference %s", id)
	}
	if err != nil {
		return contracts.Reference{}, fmt.Errorf("registry: get %s: %w", id, err)
	}
	return ref, nil
}

func (r *Registry) List(ctx context.Context) ([]contracts.Reference, error) {
	refs, err := r.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	return refs, nil
}

// RequireActive fails with INVALID_INPUT unless every non-zero id resolves
// to an active reference.
func (r *Registry) RequireActive(ctx context.Context, op string, ids ...contracts.RefID) error {
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		ref, err := r.backend.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return contracts.Errorf(contracts.KindInvalidInput, op, "reference %s is not registered", id)
		}
		if err != nil {
			return fmt.Errorf("registry: get %s: %w", id, err)
		}
		if !ref.Active {
			return contracts.Errorf(contracts.KindInvalidInput, op, "reference %s (%s) is inactive", id, ref.Name)
		}
	}
	return nil
}
