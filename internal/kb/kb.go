package kb

import (
	"context"
	"time"

	"github.com/frahmantamala/kb-management/internal/accesscontrol"
)

// KnowledgeBase is the resource access control protects. Deletion is a soft
// flag: grant rows survive it but stop resolving, so restoring a kb restores
// its sharing state too.
type KnowledgeBase struct {
	ID             string     `json:"id" gorm:"primaryKey;column:id"`
	Name           string     `json:"name" gorm:"column:name"`
	OwnerID        string     `json:"owner_id" gorm:"column:owner_id"`
	Deleted        bool       `json:"deleted" gorm:"column:deleted"`
	LatestQAAt     *time.Time `json:"latest_qa_at,omitempty" gorm:"column:latest_qa_at"`
	LatestInsertAt *time.Time `json:"latest_insert_at,omitempty" gorm:"column:latest_insert_at"`
	CreatedAt      time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (KnowledgeBase) TableName() string { return "knowledge_bases" }

// Repository is the kb registry persistence surface. GetByID returns deleted
// rows as well; the service decides how deletion surfaces to callers.
type Repository interface {
	Create(ctx context.Context, kb *KnowledgeBase) error
	GetByID(ctx context.Context, id string) (*KnowledgeBase, error)
	Update(ctx context.Context, kb *KnowledgeBase) error
	SoftDelete(ctx context.Context, id string) error
	TouchLatestQA(ctx context.Context, id string, at time.Time) error
	TouchLatestInsert(ctx context.Context, id string, at time.Time) error
	ListByIDs(ctx context.Context, ids []string) ([]KnowledgeBase, error)
}

// AccessGranter writes the owner's bootstrap admin grant on creation.
type AccessGranter interface {
	Grant(ctx context.Context, kbID string, subject accesscontrol.SubjectRef, level accesscontrol.Level, grantedBy string) (accesscontrol.Level, error)
}

// AccessLister resolves which kbs an actor can reach at a minimum level.
type AccessLister interface {
	AccessibleResources(ctx context.Context, actorID string, minLevel accesscontrol.Level) ([]accesscontrol.ResourceAccess, error)
}
