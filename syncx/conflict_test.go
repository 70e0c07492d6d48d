package syncx

import (
	"context"
	"testing"
)

func entityAt(id string, version, updatedAt int64, deleted bool) *widget {
	w := &widget{BaseEntity: NewBaseEntity(id, "widgets", updatedAt)}
	w.SetVersion(version)
	w.SetDeleted(deleted)
	return w
}

func TestParseStrategyCaseInsensitive(t *testing.T) {
	s, err := ParseStrategy("USE_LATEST")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s != StrategyUseLatest {
		t.Fatalf("expected use_latest, got %q", s)
	}

	if _, err := ParseStrategy("bogus"); err == nil {
		t.Fatal("expected error for unrecognized strategy")
	}
}

func TestHasConflictVersionMismatch(t *testing.T) {
	local := entityAt("w1", 1, 1000, false)
	remote := entityAt("w1", 2, 1000, false)
	if !HasConflict(local, remote) {
		t.Fatal("expected version mismatch to be a conflict")
	}
}

func TestHasConflictNoDivergenceWhenNeverSynced(t *testing.T) {
	local := entityAt("w1", 1, 1000, false)
	remote := entityAt("w1", 1, 2000, false)
	if HasConflict(local, remote) {
		t.Fatal("expected no conflict when local has never synced")
	}
}

func TestHasConflictBothModifiedSinceSync(t *testing.T) {
	local := entityAt("w1", 1, 2000, false)
	local.SetSyncedAt(1000, true)
	remote := entityAt("w1", 1, 1500, false)

	if !HasConflict(local, remote) {
		t.Fatal("expected both-sides-modified-since-sync to be a conflict")
	}
}

func TestDefaultResolverUseLatest(t *testing.T) {
	r := NewDefaultResolver(StrategyUseLatest)
	local := entityAt("w1", 1, 1000, false)
	remote := entityAt("w1", 1, 2000, false)

	winner, ok, err := r.Resolve(context.Background(), Conflict{Kind: ConflictBothModified, Local: local, Remote: remote})
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if winner.(*widget).ID() != remote.ID() || winner.UpdatedAt() != 2000 {
		t.Fatalf("expected remote (later updated_at) to win")
	}
}

func TestDefaultResolverDeclinesDataCorruption(t *testing.T) {
	r := NewDefaultResolver(StrategyUseLatest)
	if r.CanResolve(ConflictDataCorruption) {
		t.Fatal("expected default resolver to decline data_corruption")
	}
}

func TestDefaultResolverVersionMismatchPicksHighest(t *testing.T) {
	r := NewDefaultResolver(StrategyUseLatest)
	local := entityAt("w1", 5, 1000, false)
	remote := entityAt("w1", 2, 2000, false)

	winner, ok, err := r.Resolve(context.Background(), Conflict{Kind: ConflictVersionMismatch, Local: local, Remote: remote})
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if winner.Version() != 5 {
		t.Fatalf("expected highest version (local=5) to win, got %d", winner.Version())
	}
}

type skipResolver struct{}

func (skipResolver) Name() string                       { return "skip" }
func (skipResolver) Priority() int                       { return 10 }
func (skipResolver) CanResolve(kind ConflictKind) bool   { return kind == ConflictBothModified }
func (skipResolver) Resolve(context.Context, Conflict) (Entity, bool, error) {
	return nil, false, nil
}

func TestResolverChainStopsAtDecliningHigherPriorityResolver(t *testing.T) {
	var chain resolverChain
	chain.register(NewDefaultResolver(StrategyUseLatest))
	chain.register(skipResolver{})

	local := entityAt("w1", 1, 1000, false)
	remote := entityAt("w1", 1, 2000, false)

	_, ok, err := chain.resolve(context.Background(), Conflict{Kind: ConflictBothModified, Local: local, Remote: remote})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Fatal("expected the chain to stop at skipResolver rather than falling through to default")
	}
}

func TestResolverChainOrdersByPriority(t *testing.T) {
	var chain resolverChain
	chain.register(NewDefaultResolver(StrategyUseLatest))
	chain.register(skipResolver{})

	if chain.resolvers[0].Name() != "skip" {
		t.Fatalf("expected higher-priority resolver first, got %q", chain.resolvers[0].Name())
	}
}

func TestResolverChainRemove(t *testing.T) {
	var chain resolverChain
	chain.register(NewDefaultResolver(StrategyUseLatest))
	chain.remove("default")
	if len(chain.resolvers) != 0 {
		t.Fatalf("expected resolver removed, got %d remaining", len(chain.resolvers))
	}
}
