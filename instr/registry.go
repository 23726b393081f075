package instr

import (
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrAlreadyOwned indicates that another task currently owns the
	// instrument.
	ErrAlreadyOwned = errors.New("instrument already owned")

	// ErrNotOwner indicates a release attempt by a task that does not own
	// the instrument.
	ErrNotOwner = errors.New("caller does not own instrument")
)

// OwnerRegistry tracks which task-flow currently owns each instrument.
//
// A job or ramp on a given instrument must not be driven from more than one
// logical flow at a time; the registry makes that exclusivity explicit. A
// task claims an instrument before issuing commands and releases it when its
// sequence ends. Claiming is idempotent for the current owner, so a task
// re-entering its own sequence does not deadlock itself.
type OwnerRegistry struct {
	owners *xsync.MapOf[string, string]
}

// NewOwnerRegistry creates an empty registry.
func NewOwnerRegistry() *OwnerRegistry {
	return &OwnerRegistry{
		owners: xsync.NewMapOf[string, string](),
	}
}

// Claim records owner as the exclusive user of the named instrument.
// It succeeds if the instrument is free or already owned by the same owner,
// and fails with ErrAlreadyOwned otherwise.
func (r *OwnerRegistry) Claim(instrument, owner string) error {
	var holder string
	r.owners.Compute(instrument, func(old string, loaded bool) (string, bool) {
		if loaded && old != owner {
			holder = old
			return old, false
		}

		return owner, false
	})

	if holder != "" {
		return fmt.Errorf("%w: %s is owned by %s", ErrAlreadyOwned, instrument, holder)
	}

	return nil
}

// Release frees the named instrument. Only the current owner may release it.
func (r *OwnerRegistry) Release(instrument, owner string) error {
	var mismatch string
	r.owners.Compute(instrument, func(old string, loaded bool) (string, bool) {
		if !loaded {
			return "", true
		}
		if old != owner {
			mismatch = old
			return old, false
		}

		return "", true
	})

	if mismatch != "" {
		return fmt.Errorf("%w: %s is owned by %s", ErrNotOwner, instrument, mismatch)
	}

	return nil
}

// Owner returns the current owner of the named instrument, if any.
func (r *OwnerRegistry) Owner(instrument string) (string, bool) {
	return r.owners.Load(instrument)
}
