// ABOUTME: Conflict taxonomy, resolution strategies, and the pluggable
// ABOUTME: resolver chain described in spec section 4.4.3/4.4.4.
package syncx

import (
	"context"
	"fmt"
	"strings"
)

// ConflictKind classifies how local and remote diverged (spec section
// 4.4.4).
type ConflictKind string

const (
	ConflictBothModified              ConflictKind = "both_modified"
	ConflictLocalDeletedRemoteModified ConflictKind = "local_deleted_remote_modified"
	ConflictLocalModifiedRemoteDeleted ConflictKind = "local_modified_remote_deleted"
	ConflictBothDeleted               ConflictKind = "both_deleted"
	ConflictVersionMismatch           ConflictKind = "version_mismatch"
	ConflictDataCorruption            ConflictKind = "data_corruption"
)

// Strategy is a named resolution policy (spec section 4.4.4). Parsing is
// case-insensitive; unrecognized strings fail.
type Strategy string

const (
	StrategyUseLocal         Strategy = "use_local"
	StrategyUseRemote        Strategy = "use_remote"
	StrategyUseLatest        Strategy = "use_latest"
	StrategyUseHighestVersion Strategy = "use_highest_version"
	StrategyMerge            Strategy = "merge"
	StrategyCustom           Strategy = "custom"
	StrategySkip             Strategy = "skip"
)

// ParseStrategy parses the canonical snake-case wire form, case-insensitive.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyUseLocal, StrategyUseRemote, StrategyUseLatest, StrategyUseHighestVersion, StrategyMerge, StrategyCustom, StrategySkip:
		return Strategy(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("syncx: unrecognized conflict strategy %q", s)
	}
}

// Conflict records a detected divergence between a local and remote entity.
type Conflict struct {
	ID         string
	EntityID   string
	EntityType string // table name
	Local      Entity
	Remote     Entity
	Kind       ConflictKind
	DetectedAt int64
	IsResolved bool
	ResolvedAt *int64
	Strategy   *Strategy
}

// Resolver produces the winning entity for a conflict it can handle. Many
// resolvers may be registered; the engine invokes them in descending
// Priority order and stops at the first that CanResolve(kind) returns true.
type Resolver interface {
	Name() string
	Priority() int
	CanResolve(kind ConflictKind) bool
	// Resolve returns the winning entity, or ok=false if it declines to
	// produce one (e.g. Custom/Skip strategies per spec section 4.4.4).
	Resolve(ctx context.Context, c Conflict) (winner Entity, ok bool, err error)
}

// defaultResolver implements UseLatest/UseHighestVersion/UseLocal/UseRemote
// style resolution for every kind except DataCorruption, registered under
// the name "default" at priority 0 (spec section 4.4.4).
type defaultResolver struct {
	strategy Strategy
}

// NewDefaultResolver builds the resolver registered by the engine at
// startup unless the caller removes it. strategy defaults to UseLatest
// when empty, matching the default resolver's behavior in spec section
// 4.4.4 (Merge falls back to UseLatest; this package implements no CRDT
// merge per the Non-goals).
func NewDefaultResolver(strategy Strategy) Resolver {
	if strategy == "" {
		strategy = StrategyUseLatest
	}
	return &defaultResolver{strategy: strategy}
}

func (r *defaultResolver) Name() string { return "default" }
func (r *defaultResolver) Priority() int { return 0 }

func (r *defaultResolver) CanResolve(kind ConflictKind) bool {
	return kind != ConflictDataCorruption
}

func (r *defaultResolver) Resolve(_ context.Context, c Conflict) (Entity, bool, error) {
	if !r.CanResolve(c.Kind) {
		return nil, false, nil
	}

	switch c.Kind {
	case ConflictLocalDeletedRemoteModified:
		return pickByStrategy(r.strategy, c.Local, c.Remote)
	case ConflictLocalModifiedRemoteDeleted:
		return pickByStrategy(r.strategy, c.Local, c.Remote)
	case ConflictBothDeleted:
		return c.Remote, true, nil
	case ConflictVersionMismatch:
		return pickHighestVersion(c.Local, c.Remote), true, nil
	case ConflictBothModified:
		return pickByStrategy(r.strategy, c.Local, c.Remote)
	default:
		return nil, false, nil
	}
}

func pickByStrategy(s Strategy, local, remote Entity) (Entity, bool, error) {
	switch s {
	case StrategyUseLocal:
		return local, true, nil
	case StrategyUseRemote:
		return remote, true, nil
	case StrategyUseHighestVersion:
		return pickHighestVersion(local, remote), true, nil
	case StrategyCustom, StrategySkip:
		return nil, false, nil
	case StrategyMerge, StrategyUseLatest, "":
		// Merge falls back to UseLatest: no CRDT merge logic (Non-goals).
		if remote.UpdatedAt() >= local.UpdatedAt() {
			return remote, true, nil
		}
		return local, true, nil
	default:
		return nil, false, fmt.Errorf("syncx: unknown strategy %q", s)
	}
}

func pickHighestVersion(local, remote Entity) Entity {
	if remote.Version() >= local.Version() {
		return remote
	}
	return local
}

// HasConflict reports whether local and remote have diverged since the
// last sync, per spec section 4.4.3. The timestamp clause is symmetric
// (doesn't matter which side's clock moved); the version clause is not —
// any mismatch is a conflict regardless of which side is larger.
func HasConflict(local, remote Entity) bool {
	if local.Version() != remote.Version() {
		return true
	}
	syncedAt, hasSynced := local.SyncedAt()
	if hasSynced && local.UpdatedAt() > syncedAt && remote.UpdatedAt() > syncedAt {
		return true
	}
	return false
}

// resolverChain runs registered resolvers in descending priority order.
type resolverChain struct {
	resolvers []Resolver
}

func (c *resolverChain) register(r Resolver) {
	c.resolvers = append(c.resolvers, r)
	// Stable-ish descending sort by priority; ties keep registration order.
	for i := len(c.resolvers) - 1; i > 0; i-- {
		if c.resolvers[i].Priority() > c.resolvers[i-1].Priority() {
			c.resolvers[i], c.resolvers[i-1] = c.resolvers[i-1], c.resolvers[i]
		} else {
			break
		}
	}
}

func (c *resolverChain) remove(name string) {
	out := c.resolvers[:0]
	for _, r := range c.resolvers {
		if r.Name() != name {
			out = append(out, r)
		}
	}
	c.resolvers = out
}

func (c *resolverChain) resolve(ctx context.Context, conflict Conflict) (Entity, bool, error) {
	for _, r := range c.resolvers {
		if !r.CanResolve(conflict.Kind) {
			continue
		}
		winner, ok, err := r.Resolve(ctx, conflict)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return winner, true, nil
		}
		// A resolver that CanResolve but declines (Custom/Skip) stops the
		// chain at that resolver rather than falling through to a lower
		// priority one, since it explicitly claimed the kind.
		return nil, false, nil
	}
	return nil, false, nil
}
