package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantRepository implements the accesscontrol store and reader interfaces
// using GORM. The authorization engine reads user, group and kb rows through
// it as well, so a single repository backs every lookup a check needs.
type GrantRepository struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) Find(ctx context.Context, kbID string, subject accesscontrol.SubjectRef) (*accesscontrol.Grant, error) {
	var grant accesscontrol.Grant
	err := r.db.WithContext(ctx).
		Where("kb_id = ? AND subject_type = ? AND subject_id = ?", kbID, subject.Kind, subject.ID).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// Upsert relies on the unique index over (kb_id, subject_type, subject_id):
// concurrent grants to the same subject serialize to last-write-wins on the
// level instead of producing two rows.
func (r *GrantRepository) Upsert(ctx context.Context, grant *accesscontrol.Grant) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "kb_id"}, {Name: "subject_type"}, {Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"permission_type", "granted_by", "granted_at",
			}),
		}).
		Create(grant).Error
}

func (r *GrantRepository) Delete(ctx context.Context, kbID string, subject accesscontrol.SubjectRef) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("kb_id = ? AND subject_type = ? AND subject_id = ?", kbID, subject.Kind, subject.ID).
		Delete(&accesscontrol.Grant{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GrantRepository) DeleteAllForSubject(ctx context.Context, subject accesscontrol.SubjectRef) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subject.Kind, subject.ID).
		Delete(&accesscontrol.Grant{})
	return result.RowsAffected, result.Error
}

func (r *GrantRepository) ListByKB(ctx context.Context, kbID string) ([]accesscontrol.Grant, error) {
	var grants []accesscontrol.Grant
	err := r.db.WithContext(ctx).
		Where("kb_id = ?", kbID).
		Order("subject_type, subject_id").
		Find(&grants).Error
	return grants, err
}

func (r *GrantRepository) ListForSubjects(ctx context.Context, subjects []accesscontrol.SubjectRef) ([]accesscontrol.Grant, error) {
	if len(subjects) == 0 {
		return nil, nil
	}

	query := r.db.WithContext(ctx).Model(&accesscontrol.Grant{}).
		Joins("JOIN knowledge_bases kb ON kb.id = kb_access.kb_id AND kb.deleted = ?", false)

	cond := r.db.Where("1 = 0")
	for _, subject := range subjects {
		cond = cond.Or("kb_access.subject_type = ? AND kb_access.subject_id = ?", subject.Kind, subject.ID)
	}

	var grants []accesscontrol.Grant
	err := query.Where(cond).Find(&grants).Error
	return grants, err
}

// ---- directory reads used by the engine and admin validation ----

func (r *GrantRepository) FindActor(ctx context.Context, userID string) (*accesscontrol.Actor, error) {
	var (
		actor  accesscontrol.Actor
		role   string
		deptID sql.NullString
		status string
	)

	row := r.db.WithContext(ctx).
		Raw("SELECT id, role, dept_id, status FROM users WHERE id = ?", userID).Row()
	if err := row.Scan(&actor.ID, &role, &deptID, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	actor.Role = accesscontrol.Role(role)
	actor.Active = status == "active"
	if deptID.Valid {
		actor.DepartmentID = deptID.String
	}
	return &actor, nil
}

func (r *GrantRepository) ActiveGroupIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.WithContext(ctx).
		Raw("SELECT group_id FROM group_members WHERE user_id = ? AND is_active = ?", userID, true).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groupIDs []string
	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return nil, err
		}
		groupIDs = append(groupIDs, groupID)
	}
	return groupIDs, rows.Err()
}

func (r *GrantRepository) SubjectExists(ctx context.Context, subject accesscontrol.SubjectRef) (bool, error) {
	var query string
	switch subject.Kind {
	case accesscontrol.SubjectUser:
		query = "SELECT COUNT(1) FROM users WHERE id = ? AND status = 'active'"
	case accesscontrol.SubjectDepartment:
		query = "SELECT COUNT(1) FROM departments WHERE id = ?"
	case accesscontrol.SubjectGroup:
		query = "SELECT COUNT(1) FROM user_groups WHERE id = ?"
	default:
		return false, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Raw(query, subject.ID).Scan(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ---- kb registry reads and the ownership transaction ----

func (r *GrantRepository) FindResource(ctx context.Context, kbID string) (*accesscontrol.Resource, error) {
	var resource accesscontrol.Resource
	row := r.db.WithContext(ctx).
		Raw("SELECT id, owner_id, deleted FROM knowledge_bases WHERE id = ?", kbID).Row()
	if err := row.Scan(&resource.ID, &resource.OwnerID, &resource.Deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &resource, nil
}

func (r *GrantRepository) ListOwned(ctx context.Context, ownerID string) ([]accesscontrol.Resource, error) {
	return r.listResources(ctx, "SELECT id, owner_id, deleted FROM knowledge_bases WHERE owner_id = ? AND deleted = ?", ownerID, false)
}

func (r *GrantRepository) ListAll(ctx context.Context) ([]accesscontrol.Resource, error) {
	return r.listResources(ctx, "SELECT id, owner_id, deleted FROM knowledge_bases WHERE deleted = ?", false)
}

func (r *GrantRepository) listResources(ctx context.Context, query string, args ...interface{}) ([]accesscontrol.Resource, error) {
	rows, err := r.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []accesscontrol.Resource
	for rows.Next() {
		var resource accesscontrol.Resource
		if err := rows.Scan(&resource.ID, &resource.OwnerID, &resource.Deleted); err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	return resources, rows.Err()
}

func (r *GrantRepository) UpdateOwner(ctx context.Context, kbID, newOwnerID string) error {
	return r.db.WithContext(ctx).
		Exec("UPDATE knowledge_bases SET owner_id = ?, updated_at = ? WHERE id = ?", newOwnerID, time.Now(), kbID).Error
}

// TransferOwner updates the kb owner and upserts the new owner's admin grant
// in one transaction; readers never see ownership moved without the grant row.
func (r *GrantRepository) TransferOwner(ctx context.Context, kbID, newOwnerID, requestedBy string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("UPDATE knowledge_bases SET owner_id = ?, updated_at = ? WHERE id = ?", newOwnerID, time.Now(), kbID).Error; err != nil {
			return err
		}

		grant := &accesscontrol.Grant{
			KBID:        kbID,
			SubjectKind: accesscontrol.SubjectUser,
			SubjectID:   newOwnerID,
			Level:       accesscontrol.LevelAdmin,
			GrantedBy:   requestedBy,
			GrantedAt:   time.Now(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "kb_id"}, {Name: "subject_type"}, {Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"permission_type", "granted_by", "granted_at",
			}),
		}).Create(grant).Error
	})
}
