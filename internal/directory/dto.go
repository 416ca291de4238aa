package directory

import "strings"

// ValidationError represents a simple validation error from DTO validation.
type ValidationError struct {
	Msg string
}

func (v ValidationError) Error() string { return v.Msg }

type CreateUserDTO struct {
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Password     string  `json:"password"`
	Role         string  `json:"role"`
	DepartmentID *string `json:"dept_id,omitempty"`
}

func (d CreateUserDTO) Validate() error {
	if d.Email == "" || !strings.Contains(d.Email, "@") {
		return ValidationError{Msg: "a valid email is required"}
	}
	if d.Name == "" {
		return ValidationError{Msg: "name is required"}
	}
	if len(d.Password) < 8 {
		return ValidationError{Msg: "password must be at least 8 characters"}
	}
	switch d.Role {
	case "", "user", "admin", "superadmin":
	default:
		return ValidationError{Msg: "role must be one of user, admin, superadmin"}
	}
	return nil
}

type UpdateUserDTO struct {
	Name         *string `json:"name,omitempty"`
	Role         *string `json:"role,omitempty"`
	DepartmentID *string `json:"dept_id,omitempty"`
}

func (d UpdateUserDTO) Validate() error {
	if d.Name != nil && *d.Name == "" {
		return ValidationError{Msg: "name cannot be empty"}
	}
	if d.Role != nil {
		switch *d.Role {
		case "user", "admin", "superadmin":
		default:
			return ValidationError{Msg: "role must be one of user, admin, superadmin"}
		}
	}
	return nil
}

type CreateDepartmentDTO struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
}

func (d CreateDepartmentDTO) Validate() error {
	if d.Name == "" {
		return ValidationError{Msg: "name is required"}
	}
	return nil
}

type UpdateDepartmentDTO struct {
	Name     *string `json:"name,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}

func (d UpdateDepartmentDTO) Validate() error {
	if d.Name != nil && *d.Name == "" {
		return ValidationError{Msg: "name cannot be empty"}
	}
	return nil
}

type CreateGroupDTO struct {
	Name string `json:"name"`
}

func (d CreateGroupDTO) Validate() error {
	if d.Name == "" {
		return ValidationError{Msg: "name is required"}
	}
	return nil
}

type AddMemberDTO struct {
	UserID     string `json:"user_id"`
	MemberRole string `json:"member_role"`
}

func (d AddMemberDTO) Validate() error {
	if d.UserID == "" {
		return ValidationError{Msg: "user_id is required"}
	}
	switch d.MemberRole {
	case "", "member", "owner":
	default:
		return ValidationError{Msg: "member_role must be member or owner"}
	}
	return nil
}
