package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/kb-management/internal/kb"
	"gorm.io/gorm"
)

// KBRepository implements the kb.Repository interface using GORM.
type KBRepository struct {
	db *gorm.DB
}

func NewKBRepository(db *gorm.DB) *KBRepository {
	return &KBRepository{db: db}
}

func (r *KBRepository) Create(ctx context.Context, k *kb.KnowledgeBase) error {
	return r.db.WithContext(ctx).Create(k).Error
}

func (r *KBRepository) GetByID(ctx context.Context, id string) (*kb.KnowledgeBase, error) {
	var k kb.KnowledgeBase
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&k).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &k, nil
}

func (r *KBRepository) Update(ctx context.Context, k *kb.KnowledgeBase) error {
	return r.db.WithContext(ctx).Save(k).Error
}

func (r *KBRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&kb.KnowledgeBase{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted":    true,
			"updated_at": time.Now(),
		}).Error
}

func (r *KBRepository) TouchLatestQA(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&kb.KnowledgeBase{}).
		Where("id = ?", id).
		Update("latest_qa_at", at).Error
}

func (r *KBRepository) TouchLatestInsert(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&kb.KnowledgeBase{}).
		Where("id = ?", id).
		Update("latest_insert_at", at).Error
}

func (r *KBRepository) ListByIDs(ctx context.Context, ids []string) ([]kb.KnowledgeBase, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var kbs []kb.KnowledgeBase
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&kbs).Error
	return kbs, err
}
