package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	"github.com/google/uuid"
)

// Service handles directory business logic: users, departments, groups and
// the grant cascades their lifecycle changes trigger.
type Service struct {
	repo   Repository
	access AccessCascader
	hasher PasswordHasher
	logger *slog.Logger
}

func NewService(repo Repository, access AccessCascader, hasher PasswordHasher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		access: access,
		hasher: hasher,
		logger: logger,
	}
}

// ---- users ----

func (s *Service) CreateUser(ctx context.Context, dto CreateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetUserByEmail(ctx, dto.Email)
	if err != nil {
		return nil, fmt.Errorf("email lookup: %w", err)
	}
	if existing != nil {
		return nil, internal.ErrDuplicateEmail
	}

	if dto.DepartmentID != nil {
		if _, err := s.mustGetDepartment(ctx, *dto.DepartmentID); err != nil {
			return nil, err
		}
	}

	hash, err := s.hasher.HashPassword(dto.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := dto.Role
	if role == "" {
		role = string(accesscontrol.RoleUser)
	}

	now := time.Now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        dto.Email,
		Name:         dto.Name,
		PasswordHash: hash,
		Role:         role,
		Status:       UserStatusActive,
		DepartmentID: dto.DepartmentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user created", "user_id", user.ID, "email", user.Email, "role", user.Role)
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, internal.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListUsers(ctx, limit, offset)
}

func (s *Service) UpdateUser(ctx context.Context, id string, dto UpdateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		user.Name = *dto.Name
	}
	if dto.Role != nil {
		user.Role = *dto.Role
	}
	if dto.DepartmentID != nil {
		if *dto.DepartmentID == "" {
			user.DepartmentID = nil
		} else {
			if _, err := s.mustGetDepartment(ctx, *dto.DepartmentID); err != nil {
				return nil, err
			}
			user.DepartmentID = dto.DepartmentID
		}
	}
	user.UpdatedAt = time.Now()

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// DeactivateUser marks the account inactive, revokes every grant the user
// holds and deactivates their group memberships. One call, one cascade: no
// path exists where a deactivated user keeps reachable grants.
func (s *Service) DeactivateUser(ctx context.Context, id string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !user.IsActive() {
		return nil
	}

	if err := s.repo.SetUserStatus(ctx, id, UserStatusInactive); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}

	revoked, err := s.access.RevokeAllFor(ctx, accesscontrol.UserRef(id))
	if err != nil {
		return fmt.Errorf("revoke user grants: %w", err)
	}

	memberships, err := s.repo.DeactivateMemberships(ctx, id)
	if err != nil {
		return fmt.Errorf("deactivate memberships: %w", err)
	}

	s.logger.Info("user deactivated",
		"user_id", id,
		"grants_revoked", revoked,
		"memberships_deactivated", memberships)
	return nil
}

// ReactivateUser restores login. Grants revoked at deactivation stay revoked;
// they must be granted again deliberately.
func (s *Service) ReactivateUser(ctx context.Context, id string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.IsActive() {
		return nil
	}

	if err := s.repo.SetUserStatus(ctx, id, UserStatusActive); err != nil {
		return fmt.Errorf("reactivate user: %w", err)
	}

	s.logger.Info("user reactivated", "user_id", id)
	return nil
}

// ---- departments ----

func (s *Service) CreateDepartment(ctx context.Context, dto CreateDepartmentDTO) (*Department, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if dto.ParentID != nil {
		if _, err := s.mustGetDepartment(ctx, *dto.ParentID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	dept := &Department{
		ID:        uuid.NewString(),
		Name:      dto.Name,
		ParentID:  dto.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateDepartment(ctx, dept); err != nil {
		return nil, fmt.Errorf("create department: %w", err)
	}

	s.logger.Info("department created", "dept_id", dept.ID, "name", dept.Name)
	return dept, nil
}

func (s *Service) GetDepartment(ctx context.Context, id string) (*Department, error) {
	return s.mustGetDepartment(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.repo.ListDepartments(ctx)
}

// UpdateDepartment renames or reparents a department. Reparenting walks the
// proposed ancestor chain first; a department can never become its own
// ancestor.
func (s *Service) UpdateDepartment(ctx context.Context, id string, dto UpdateDepartmentDTO) (*Department, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	dept, err := s.mustGetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		dept.Name = *dto.Name
	}
	if dto.ParentID != nil {
		if *dto.ParentID == "" {
			dept.ParentID = nil
		} else {
			if err := s.checkNoCycle(ctx, id, *dto.ParentID); err != nil {
				return nil, err
			}
			dept.ParentID = dto.ParentID
		}
	}
	dept.UpdatedAt = time.Now()

	if err := s.repo.UpdateDepartment(ctx, dept); err != nil {
		return nil, fmt.Errorf("update department: %w", err)
	}
	return dept, nil
}

// DeleteDepartment removes an empty department and revokes its grants. A
// department with child departments or assigned users is refused; callers
// must move or delete those first.
func (s *Service) DeleteDepartment(ctx context.Context, id string) error {
	if _, err := s.mustGetDepartment(ctx, id); err != nil {
		return err
	}

	children, err := s.repo.CountChildDepartments(ctx, id)
	if err != nil {
		return fmt.Errorf("count children: %w", err)
	}
	if children > 0 {
		return internal.ErrDepartmentNotEmpty
	}

	users, err := s.repo.CountDepartmentUsers(ctx, id)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if users > 0 {
		return internal.ErrDepartmentNotEmpty
	}

	if err := s.repo.DeleteDepartment(ctx, id); err != nil {
		return fmt.Errorf("delete department: %w", err)
	}

	revoked, err := s.access.RevokeAllFor(ctx, accesscontrol.DepartmentRef(id))
	if err != nil {
		return fmt.Errorf("revoke department grants: %w", err)
	}

	s.logger.Info("department deleted", "dept_id", id, "grants_revoked", revoked)
	return nil
}

// checkNoCycle walks up from the proposed parent. Hitting the department
// being moved means the move would close a loop.
func (s *Service) checkNoCycle(ctx context.Context, deptID, newParentID string) error {
	if deptID == newParentID {
		return internal.ErrCyclicDepartment
	}

	current := newParentID
	for i := 0; i < maxDepartmentDepth; i++ {
		parent, err := s.mustGetDepartment(ctx, current)
		if err != nil {
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		if *parent.ParentID == deptID {
			return internal.ErrCyclicDepartment
		}
		current = *parent.ParentID
	}
	return internal.ErrCyclicDepartment
}

// maxDepartmentDepth bounds the ancestor walk; org trees deeper than this
// are treated as corrupt.
const maxDepartmentDepth = 100

// ---- groups ----

func (s *Service) CreateGroup(ctx context.Context, dto CreateGroupDTO, ownerID string) (*Group, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	owner, err := s.GetUser(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	group := &Group{
		ID:        uuid.NewString(),
		Name:      dto.Name,
		OwnerID:   owner.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	// The creator joins as an active owner member.
	member := &GroupMember{
		GroupID:    group.ID,
		UserID:     owner.ID,
		MemberRole: "owner",
		IsActive:   true,
		CreatedAt:  now,
	}
	if err := s.repo.UpsertMember(ctx, member); err != nil {
		return nil, fmt.Errorf("add owner membership: %w", err)
	}

	s.logger.Info("group created", "group_id", group.ID, "name", group.Name, "owner_id", owner.ID)
	return group, nil
}

func (s *Service) GetGroup(ctx context.Context, id string) (*Group, error) {
	group, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		return nil, internal.ErrGroupNotFound
	}
	return group, nil
}

func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// DeleteGroup removes the group, its memberships and every grant the group
// held.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	if _, err := s.GetGroup(ctx, id); err != nil {
		return err
	}

	members, err := s.repo.RemoveAllMembers(ctx, id)
	if err != nil {
		return fmt.Errorf("remove members: %w", err)
	}

	if err := s.repo.DeleteGroup(ctx, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}

	revoked, err := s.access.RevokeAllFor(ctx, accesscontrol.GroupRef(id))
	if err != nil {
		return fmt.Errorf("revoke group grants: %w", err)
	}

	s.logger.Info("group deleted",
		"group_id", id,
		"members_removed", members,
		"grants_revoked", revoked)
	return nil
}

// AddMember upserts a membership. Re-adding a user reactivates their row so
// group grants reach them again.
func (s *Service) AddMember(ctx context.Context, groupID string, dto AddMemberDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}

	user, err := s.GetUser(ctx, dto.UserID)
	if err != nil {
		return err
	}
	if !user.IsActive() {
		return internal.ErrActorInactive
	}

	role := dto.MemberRole
	if role == "" {
		role = "member"
	}

	member := &GroupMember{
		GroupID:    groupID,
		UserID:     dto.UserID,
		MemberRole: role,
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.UpsertMember(ctx, member); err != nil {
		return fmt.Errorf("add member: %w", err)
	}

	s.logger.Info("group member added", "group_id", groupID, "user_id", dto.UserID, "member_role", role)
	return nil
}

func (s *Service) RemoveMember(ctx context.Context, groupID, userID string) error {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}

	removed, err := s.repo.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if removed {
		s.logger.Info("group member removed", "group_id", groupID, "user_id", userID)
	}
	return nil
}

func (s *Service) ListMembers(ctx context.Context, groupID string) ([]GroupMember, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, groupID)
}

func (s *Service) mustGetDepartment(ctx context.Context, id string) (*Department, error) {
	dept, err := s.repo.GetDepartment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get department: %w", err)
	}
	if dept == nil {
		return nil, internal.ErrDepartmentNotFound
	}
	return dept, nil
}
