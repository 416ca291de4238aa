package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/kb-management/internal/directory"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DirectoryRepository implements directory.Repository using GORM.
type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ---- users ----

func (r *DirectoryRepository) CreateUser(ctx context.Context, user *directory.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*directory.User, error) {
	var user directory.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *DirectoryRepository) GetUserByEmail(ctx context.Context, email string) (*directory.User, error) {
	var user directory.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *DirectoryRepository) ListUsers(ctx context.Context, limit, offset int) ([]directory.User, error) {
	var users []directory.User
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	return users, err
}

func (r *DirectoryRepository) UpdateUser(ctx context.Context, user *directory.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *DirectoryRepository) SetUserStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&directory.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *DirectoryRepository) DeactivateMemberships(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&directory.GroupMember{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// ---- departments ----

func (r *DirectoryRepository) CreateDepartment(ctx context.Context, dept *directory.Department) error {
	return r.db.WithContext(ctx).Create(dept).Error
}

func (r *DirectoryRepository) GetDepartment(ctx context.Context, id string) (*directory.Department, error) {
	var dept directory.Department
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dept, nil
}

func (r *DirectoryRepository) ListDepartments(ctx context.Context) ([]directory.Department, error) {
	var depts []directory.Department
	err := r.db.WithContext(ctx).Order("name ASC").Find(&depts).Error
	return depts, err
}

func (r *DirectoryRepository) UpdateDepartment(ctx context.Context, dept *directory.Department) error {
	return r.db.WithContext(ctx).Save(dept).Error
}

func (r *DirectoryRepository) DeleteDepartment(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&directory.Department{}).Error
}

func (r *DirectoryRepository) CountChildDepartments(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&directory.Department{}).
		Where("parent_id = ?", id).
		Count(&count).Error
	return count, err
}

func (r *DirectoryRepository) CountDepartmentUsers(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&directory.User{}).
		Where("dept_id = ?", id).
		Count(&count).Error
	return count, err
}

// ---- groups ----

func (r *DirectoryRepository) CreateGroup(ctx context.Context, group *directory.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *DirectoryRepository) GetGroup(ctx context.Context, id string) (*directory.Group, error) {
	var group directory.Group
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *DirectoryRepository) ListGroups(ctx context.Context) ([]directory.Group, error) {
	var groups []directory.Group
	err := r.db.WithContext(ctx).Order("name ASC").Find(&groups).Error
	return groups, err
}

func (r *DirectoryRepository) DeleteGroup(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&directory.Group{}).Error
}

// UpsertMember reactivates an existing membership row instead of failing the
// unique (group_id, user_id) index.
func (r *DirectoryRepository) UpsertMember(ctx context.Context, member *directory.GroupMember) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"member_role", "is_active"}),
		}).
		Create(member).Error
}

func (r *DirectoryRepository) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&directory.GroupMember{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *DirectoryRepository) ListMembers(ctx context.Context, groupID string) ([]directory.GroupMember, error) {
	var members []directory.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

func (r *DirectoryRepository) RemoveAllMembers(ctx context.Context, groupID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&directory.GroupMember{})
	return result.RowsAffected, result.Error
}
