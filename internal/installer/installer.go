// Package installer defines the uniform contract every tool installer
// implements and the compile-time registry that resolves profiles into
// dependency-closed installer sets.
//
// Each installer provides three operations: Detect reports the installed
// version if any, Install mutates the system to provide the tool, and Verify
// confirms the tool works. Detect and Verify are read-only by contract;
// Install is the only operation permitted to change system state. Adding a
// new tool means writing one implementation in the installers subpackage and
// registering it in NewRegistry — the scheduler never changes.
package installer

import (
	"context"
	"sort"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/errors"
)

// Descriptor is the immutable metadata describing one installer. Defined once
// per tool at compile time.
type Descriptor struct {
	// ID is the unique, stable installer id used in profiles and plans.
	ID string
	// Name is the human-readable tool name.
	Name string
	// Description is one line for help and doctor output.
	Description string
	// Dependencies lists installer ids that must be provided first.
	Dependencies []string
	// ConcurrencySafe marks the install step as eligible to run alongside
	// other concurrency-safe steps with disjoint locks.
	ConcurrencySafe bool
	// RequiredLocks names the resource locks the install step must hold.
	RequiredLocks []string
	// SupportsPin reports whether the backing package source can install an
	// exact version. Package managers without versioned formulae report
	// false and treat pins as minimums.
	SupportsPin bool
}

// InstallResult reports the outcome of an Install operation.
type InstallResult struct {
	// Version that is now installed.
	Version Version
	// InstalledNew is false when the tool was already present and untouched.
	InstalledNew bool
	// WouldExecute holds the command that a dry-run would have executed.
	WouldExecute string
	// Log carries human-readable progress notes.
	Log []string
}

// VerifyResult reports the outcome of a Verify operation.
type VerifyResult struct {
	OK      bool
	Version Version
	// Issues lists human-readable problems when OK is false.
	Issues []string
}

// Installer is the contract implemented once per tool.
type Installer interface {
	// Meta returns the immutable descriptor.
	Meta() Descriptor

	// Detect reports the installed version. found is false when the tool is
	// absent. Detect must be side-effect-free.
	Detect(ctx context.Context, env *bootenv.Context) (v Version, found bool, err error)

	// Install provides the tool. In dry-run mode it must not mutate anything
	// and instead populates InstallResult.WouldExecute.
	Install(ctx context.Context, env *bootenv.Context) (InstallResult, error)

	// Verify confirms the installed tool works. Must be side-effect-free.
	Verify(ctx context.Context, env *bootenv.Context) (VerifyResult, error)
}

// Registry is the fixed, compile-time map from installer id to installer.
// There is no dynamic loading; the set of tools is closed at build time.
type Registry struct {
	installers map[string]Installer
}

// NewRegistryWith builds a registry from the given installers. The production
// set is assembled by the installers subpackage; tests inject fakes.
func NewRegistryWith(installers ...Installer) *Registry {
	r := &Registry{installers: make(map[string]Installer, len(installers))}
	for _, in := range installers {
		r.installers[in.Meta().ID] = in
	}
	return r
}

// Get returns the installer for id, or nil when unregistered.
func (r *Registry) Get(id string) Installer {
	return r.installers[id]
}

// Known reports whether id is registered.
func (r *Registry) Known(id string) bool {
	_, ok := r.installers[id]
	return ok
}

// IDs returns all registered ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.installers))
	for id := range r.installers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve expands the requested ids into the transitively closed, de-duplicated
// installer set in deterministic dependency order: dependencies precede their
// dependents, and ties break on request order then id. A cycle in the
// dependency graph fails with ErrCyclicDependency before any step executes.
func (r *Registry) Resolve(ids []string) ([]Installer, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var order []Installer

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return errors.Wrapf(errors.ErrCyclicDependency, "involving %q", id)
		}
		in := r.installers[id]
		if in == nil {
			return errors.Wrapf(errors.ErrUnknownTool, "%q", id)
		}
		state[id] = visiting
		deps := append([]string(nil), in.Meta().Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, in)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
