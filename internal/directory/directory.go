package directory

import (
	"context"
	"time"

	"github.com/frahmantamala/kb-management/internal/accesscontrol"
)

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User is a directory account. DepartmentID is nil for users outside any
// department; department grants simply never match them.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	Email        string    `json:"email" gorm:"column:email"`
	Name         string    `json:"name" gorm:"column:name"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	Role         string    `json:"role" gorm:"column:role"`
	Status       string    `json:"status" gorm:"column:status"`
	DepartmentID *string   `json:"dept_id,omitempty" gorm:"column:dept_id"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) IsActive() bool { return u.Status == UserStatusActive }

// Department is a node in the org tree. ParentID is nil at the root.
type Department struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Name      string    `json:"name" gorm:"column:name"`
	ParentID  *string   `json:"parent_id,omitempty" gorm:"column:parent_id"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Department) TableName() string { return "departments" }

// Group is an ad-hoc collection of users, owned by whoever created it.
type Group struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Name      string    `json:"name" gorm:"column:name"`
	OwnerID   string    `json:"owner_id" gorm:"column:owner_id"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Group) TableName() string { return "user_groups" }

// GroupMember links a user into a group. Inactive memberships stay on the row
// but contribute nothing to access checks.
type GroupMember struct {
	ID         int64     `json:"-" gorm:"primaryKey;autoIncrement;column:id"`
	GroupID    string    `json:"group_id" gorm:"column:group_id"`
	UserID     string    `json:"user_id" gorm:"column:user_id"`
	MemberRole string    `json:"member_role" gorm:"column:member_role"`
	IsActive   bool      `json:"is_active" gorm:"column:is_active"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
}

func (GroupMember) TableName() string { return "group_members" }

// Repository is the directory's persistence surface.
type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
	UpdateUser(ctx context.Context, user *User) error
	SetUserStatus(ctx context.Context, id, status string) error
	DeactivateMemberships(ctx context.Context, userID string) (int64, error)

	CreateDepartment(ctx context.Context, dept *Department) error
	GetDepartment(ctx context.Context, id string) (*Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	UpdateDepartment(ctx context.Context, dept *Department) error
	DeleteDepartment(ctx context.Context, id string) error
	CountChildDepartments(ctx context.Context, id string) (int64, error)
	CountDepartmentUsers(ctx context.Context, id string) (int64, error)

	CreateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	DeleteGroup(ctx context.Context, id string) error
	UpsertMember(ctx context.Context, member *GroupMember) error
	RemoveMember(ctx context.Context, groupID, userID string) (bool, error)
	ListMembers(ctx context.Context, groupID string) ([]GroupMember, error)
	RemoveAllMembers(ctx context.Context, groupID string) (int64, error)
}

// AccessCascader removes every grant a subject holds. Deactivating a user or
// deleting a department or group must not leave dangling grant rows behind.
type AccessCascader interface {
	RevokeAllFor(ctx context.Context, subject accesscontrol.SubjectRef) (int64, error)
}

// PasswordHasher hashes new user passwords; the auth service provides it.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}
