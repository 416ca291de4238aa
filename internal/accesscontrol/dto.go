package accesscontrol

// ValidationError represents a simple validation error from DTO validation.
type ValidationError struct {
	Msg string
}

func (v ValidationError) Error() string { return v.Msg }

// GrantDTO is the transport shape for setting a single permission.
type GrantDTO struct {
	SubjectKind string `json:"subject_kind"`
	SubjectID   string `json:"subject_id"`
	Level       string `json:"permission_level"`
}

func (d GrantDTO) Validate() error {
	if d.SubjectKind == "" {
		return ValidationError{Msg: "subject_kind is required"}
	}
	if d.SubjectID == "" {
		return ValidationError{Msg: "subject_id is required"}
	}
	if d.Level == "" {
		return ValidationError{Msg: "permission_level is required"}
	}
	return nil
}

func (d GrantDTO) Subject() SubjectRef {
	return SubjectRef{Kind: SubjectKind(d.SubjectKind), ID: d.SubjectID}
}

// RevokeDTO identifies the grant to remove.
type RevokeDTO struct {
	SubjectKind string `json:"subject_kind"`
	SubjectID   string `json:"subject_id"`
}

func (d RevokeDTO) Validate() error {
	if d.SubjectKind == "" {
		return ValidationError{Msg: "subject_kind is required"}
	}
	if d.SubjectID == "" {
		return ValidationError{Msg: "subject_id is required"}
	}
	return nil
}

func (d RevokeDTO) Subject() SubjectRef {
	return SubjectRef{Kind: SubjectKind(d.SubjectKind), ID: d.SubjectID}
}

// BatchSetDTO carries independent per-subject items; "none" revokes.
type BatchSetDTO struct {
	Items []GrantDTO `json:"items"`
}

func (d BatchSetDTO) Validate() error {
	if len(d.Items) == 0 {
		return ValidationError{Msg: "items is required"}
	}
	return nil
}

// TransferOwnershipDTO names the new owner of a knowledge base.
type TransferOwnershipDTO struct {
	NewOwnerID string `json:"new_owner_id"`
}

func (d TransferOwnershipDTO) Validate() error {
	if d.NewOwnerID == "" {
		return ValidationError{Msg: "new_owner_id is required"}
	}
	return nil
}
