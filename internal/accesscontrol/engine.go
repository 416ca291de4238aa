package accesscontrol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Engine answers "may this actor do this to this knowledge base". It holds no
// state between calls: every check re-reads the directory, the kb registry and
// the grant store, so grant changes are visible on the very next check. There
// is intentionally no cache in front of it.
type Engine struct {
	grants    GrantStore
	directory DirectoryReader
	resources ResourceReader
	logger    *slog.Logger
}

func NewEngine(grants GrantStore, directory DirectoryReader, resources ResourceReader, logger *slog.Logger) *Engine {
	return &Engine{
		grants:    grants,
		directory: directory,
		resources: resources,
		logger:    logger,
	}
}

// CheckAccess resolves the actor's effective permission on a knowledge base
// and compares it against the required level. Lack of permission is a normal
// Decision value; an error is returned only for store failures or a required
// level outside the read/write/admin set.
func (e *Engine) CheckAccess(ctx context.Context, actorID, kbID string, required Level) (Decision, error) {
	if _, err := ParseLevel(string(required)); err != nil {
		return Decision{}, err
	}

	resource, err := e.resources.FindResource(ctx, kbID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve kb: %w", err)
	}
	if resource == nil || resource.Deleted {
		e.logger.Warn("access denied: kb not found or deleted", "kb_id", kbID, "actor_id", actorID)
		return deny(DenialKBNotFound), nil
	}

	actor, err := e.directory.FindActor(ctx, actorID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve actor: %w", err)
	}
	if actor == nil || !actor.Active {
		e.logger.Warn("access denied: actor missing or inactive", "actor_id", actorID, "kb_id", kbID)
		return deny(DenialActorNotActive), nil
	}

	// Global role short-circuits. A superadmin gets admin everywhere; a plain
	// admin is capped at write on resources they do not own, so an admin-level
	// requirement falls through to ownership and grants.
	if actor.Role == RoleSuperAdmin {
		return allow(LevelAdmin, ProvenanceRole), nil
	}
	if actor.Role == RoleAdmin && required != LevelAdmin {
		return allow(LevelWrite, ProvenanceRole), nil
	}

	if actor.ID == resource.OwnerID {
		return allow(LevelAdmin, ProvenanceOwner), nil
	}

	level, provenance, err := e.aggregateGrants(ctx, actor, kbID)
	if err != nil {
		return Decision{}, err
	}

	if !Satisfies(level, required) {
		e.logger.Info("access denied: insufficient permission",
			"actor_id", actorID,
			"kb_id", kbID,
			"required", required,
			"effective", level,
			"provenance", provenance)
		return deny(DenialInsufficient), nil
	}

	return allow(level, provenance), nil
}

// EffectiveAccess is the read-only variant used for UI display: it reports the
// actor's effective level and its provenance without judging a requirement.
// Never use it for enforcement; callers guard with CheckAccess.
func (e *Engine) EffectiveAccess(ctx context.Context, actorID, kbID string) (Decision, error) {
	resource, err := e.resources.FindResource(ctx, kbID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve kb: %w", err)
	}
	if resource == nil || resource.Deleted {
		return deny(DenialKBNotFound), nil
	}

	actor, err := e.directory.FindActor(ctx, actorID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve actor: %w", err)
	}
	if actor == nil || !actor.Active {
		return deny(DenialActorNotActive), nil
	}

	if actor.Role == RoleSuperAdmin {
		return allow(LevelAdmin, ProvenanceRole), nil
	}
	if actor.ID == resource.OwnerID {
		return allow(LevelAdmin, ProvenanceOwner), nil
	}

	level, provenance, err := e.aggregateGrants(ctx, actor, kbID)
	if err != nil {
		return Decision{}, err
	}
	if level.Rank() == 0 {
		if actor.Role == RoleAdmin {
			return allow(LevelWrite, ProvenanceRole), nil
		}
		return deny(DenialInsufficient), nil
	}
	if actor.Role == RoleAdmin && level.Rank() < LevelWrite.Rank() {
		return allow(LevelWrite, ProvenanceRole), nil
	}
	return allow(level, provenance), nil
}

// aggregateGrants resolves the best explicit grant the actor holds on the kb:
// direct, department (exact department id match, no parent-chain walk) and
// group memberships, highest rank winning with ties broken in that order. An
// admin-level direct grant short-circuits like ownership for this kb.
func (e *Engine) aggregateGrants(ctx context.Context, actor *Actor, kbID string) (Level, Provenance, error) {
	best := LevelNone
	provenance := ProvenanceNone

	direct, err := e.grants.Find(ctx, kbID, UserRef(actor.ID))
	if err != nil {
		return LevelNone, ProvenanceNone, fmt.Errorf("direct grant lookup: %w", err)
	}
	if direct != nil {
		if direct.Level == LevelAdmin {
			return LevelAdmin, ProvenanceDirect, nil
		}
		best = direct.Level
		provenance = ProvenanceDirect
	}

	if actor.DepartmentID != "" {
		dept, err := e.grants.Find(ctx, kbID, DepartmentRef(actor.DepartmentID))
		if err != nil {
			return LevelNone, ProvenanceNone, fmt.Errorf("department grant lookup: %w", err)
		}
		if dept != nil && dept.Level.Rank() > best.Rank() {
			best = dept.Level
			provenance = ProvenanceDepartment
		}
	}

	groupIDs, err := e.directory.ActiveGroupIDs(ctx, actor.ID)
	if err != nil {
		return LevelNone, ProvenanceNone, fmt.Errorf("group membership lookup: %w", err)
	}
	for _, groupID := range groupIDs {
		grant, err := e.grants.Find(ctx, kbID, GroupRef(groupID))
		if err != nil {
			return LevelNone, ProvenanceNone, fmt.Errorf("group grant lookup: %w", err)
		}
		if grant != nil && grant.Level.Rank() > best.Rank() {
			best = grant.Level
			provenance = ProvenanceGroup
		}
	}

	return best, provenance, nil
}

// ListGrants returns every explicit grant on a knowledge base. The implicit
// owner access is not a row; callers wanting the full picture combine this
// with the kb's owner.
func (e *Engine) ListGrants(ctx context.Context, kbID string) ([]Grant, error) {
	resource, err := e.resources.FindResource(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("resolve kb: %w", err)
	}
	if resource == nil || resource.Deleted {
		return nil, errKBGone(resource)
	}
	return e.grants.ListByKB(ctx, kbID)
}

// ResourceAccess is one entry of an accessible-kb listing.
type ResourceAccess struct {
	KBID       string     `json:"kb_id"`
	Level      Level      `json:"effective_level"`
	Provenance Provenance `json:"provenance"`
}

// AccessibleResources lists every non-deleted knowledge base the actor can
// reach at or above minLevel, with the best access per kb.
func (e *Engine) AccessibleResources(ctx context.Context, actorID string, minLevel Level) ([]ResourceAccess, error) {
	if _, err := ParseLevel(string(minLevel)); err != nil {
		return nil, err
	}

	actor, err := e.directory.FindActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("resolve actor: %w", err)
	}
	if actor == nil || !actor.Active {
		return nil, nil
	}

	best := make(map[string]ResourceAccess)
	consider := func(kbID string, level Level, provenance Provenance) {
		current, ok := best[kbID]
		if !ok || level.Rank() > current.Level.Rank() {
			best[kbID] = ResourceAccess{KBID: kbID, Level: level, Provenance: provenance}
		}
	}

	if actor.Role == RoleSuperAdmin || actor.Role == RoleAdmin {
		roleLevel := LevelAdmin
		if actor.Role == RoleAdmin {
			roleLevel = LevelWrite
		}
		if Satisfies(roleLevel, minLevel) {
			all, err := e.resources.ListAll(ctx)
			if err != nil {
				return nil, fmt.Errorf("list kbs: %w", err)
			}
			for _, r := range all {
				consider(r.ID, roleLevel, ProvenanceRole)
			}
		}
	}

	owned, err := e.resources.ListOwned(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list owned kbs: %w", err)
	}
	for _, r := range owned {
		consider(r.ID, LevelAdmin, ProvenanceOwner)
	}

	subjects := []SubjectRef{UserRef(actor.ID)}
	if actor.DepartmentID != "" {
		subjects = append(subjects, DepartmentRef(actor.DepartmentID))
	}
	groupIDs, err := e.directory.ActiveGroupIDs(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("group membership lookup: %w", err)
	}
	for _, groupID := range groupIDs {
		subjects = append(subjects, GroupRef(groupID))
	}

	granted, err := e.grants.ListForSubjects(ctx, subjects)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	// Equal ranks tie-break by precedence: direct > department > group.
	sort.SliceStable(granted, func(i, j int) bool {
		return kindPrecedence(granted[i].SubjectKind) < kindPrecedence(granted[j].SubjectKind)
	})
	for _, g := range granted {
		consider(g.KBID, g.Level, provenanceForKind(g.SubjectKind))
	}

	result := make([]ResourceAccess, 0, len(best))
	for _, access := range best {
		if Satisfies(access.Level, minLevel) {
			result = append(result, access)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].KBID < result[j].KBID })
	return result, nil
}

func provenanceForKind(kind SubjectKind) Provenance {
	switch kind {
	case SubjectUser:
		return ProvenanceDirect
	case SubjectDepartment:
		return ProvenanceDepartment
	case SubjectGroup:
		return ProvenanceGroup
	}
	return ProvenanceNone
}

func kindPrecedence(kind SubjectKind) int {
	switch kind {
	case SubjectUser:
		return 0
	case SubjectDepartment:
		return 1
	default:
		return 2
	}
}
