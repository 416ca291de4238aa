package accesscontrol

import (
	"context"
	"time"

	"github.com/frahmantamala/kb-management/internal"
)

// Grant is a single access-control entry: one row per (kb, subject) pair.
// Ownership is not a Grant; it derives from the knowledge base owner column.
type Grant struct {
	ID          int64       `json:"-" gorm:"primaryKey"`
	KBID        string      `json:"kb_id" gorm:"column:kb_id"`
	SubjectKind SubjectKind `json:"subject_kind" gorm:"column:subject_type"`
	SubjectID   string      `json:"subject_id" gorm:"column:subject_id"`
	Level       Level       `json:"permission_level" gorm:"column:permission_type"`
	GrantedBy   string      `json:"granted_by" gorm:"column:granted_by"`
	GrantedAt   time.Time   `json:"granted_at" gorm:"column:granted_at"`
}

func (Grant) TableName() string {
	return "kb_access"
}

func (g Grant) Subject() SubjectRef {
	return SubjectRef{Kind: g.SubjectKind, ID: g.SubjectID}
}

// Actor is the authorization engine's view of a user: the fields consulted on
// every check, always freshly loaded from the directory (never from token
// claims).
type Actor struct {
	ID           string
	Role         Role
	DepartmentID string
	Active       bool
}

// Role is the actor's global role, independent of per-KB grants.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Resource is the engine's view of a knowledge base.
type Resource struct {
	ID      string
	OwnerID string
	Deleted bool
}

// DenialReason distinguishes the normal "no" answers of CheckAccess. None of
// these are errors.
type DenialReason string

const (
	DenialNone           DenialReason = ""
	DenialKBNotFound     DenialReason = "kb_not_found"
	DenialActorNotActive DenialReason = "actor_not_active"
	DenialInsufficient   DenialReason = "insufficient_permission"
)

// Decision is the verdict of an access check together with the provenance of
// the winning grant.
type Decision struct {
	Allowed    bool         `json:"allowed"`
	Level      Level        `json:"effective_level,omitempty"`
	Provenance Provenance   `json:"provenance,omitempty"`
	Denial     DenialReason `json:"denial_reason,omitempty"`
}

func allow(level Level, provenance Provenance) Decision {
	return Decision{Allowed: true, Level: level, Provenance: provenance}
}

func deny(reason DenialReason) Decision {
	return Decision{Allowed: false, Denial: reason}
}

// errKBGone maps an absent or soft-deleted resource to the right typed error
// for mutating paths; the read path answers with a Decision instead.
func errKBGone(r *Resource) error {
	if r != nil && r.Deleted {
		return internal.ErrKBDeleted
	}
	return internal.ErrKBNotFound
}

// GrantStore persists access-control entries. The (kb, subject kind, subject
// id) uniqueness is enforced by the store's unique index, not only here, so
// concurrent upserts serialize to last-write-wins on the level.
type GrantStore interface {
	Find(ctx context.Context, kbID string, subject SubjectRef) (*Grant, error)
	Upsert(ctx context.Context, grant *Grant) error
	Delete(ctx context.Context, kbID string, subject SubjectRef) (bool, error)
	DeleteAllForSubject(ctx context.Context, subject SubjectRef) (int64, error)
	ListByKB(ctx context.Context, kbID string) ([]Grant, error)
	// ListForSubjects returns grants held by any of the subjects on
	// non-deleted knowledge bases.
	ListForSubjects(ctx context.Context, subjects []SubjectRef) ([]Grant, error)
}

// DirectoryReader resolves the actor-side facts the engine needs per check.
type DirectoryReader interface {
	// FindActor returns nil without error when the user does not exist.
	FindActor(ctx context.Context, userID string) (*Actor, error)
	// ActiveGroupIDs lists groups the user actively belongs to.
	ActiveGroupIDs(ctx context.Context, userID string) ([]string, error)
}

// ResourceReader resolves knowledge bases for authorization purposes.
type ResourceReader interface {
	// FindResource returns nil without error when the kb does not exist;
	// soft-deleted rows are returned with Deleted set so callers can
	// distinguish them for audit logging, but must treat them as absent.
	FindResource(ctx context.Context, kbID string) (*Resource, error)
	ListOwned(ctx context.Context, ownerID string) ([]Resource, error)
	ListAll(ctx context.Context) ([]Resource, error)
	UpdateOwner(ctx context.Context, kbID, newOwnerID string) error
}
