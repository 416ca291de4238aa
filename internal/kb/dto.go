package kb

// ValidationError represents a simple validation error from DTO validation.
type ValidationError struct {
	Msg string
}

func (v ValidationError) Error() string { return v.Msg }

type CreateKBDTO struct {
	Name string `json:"name"`
}

func (d CreateKBDTO) Validate() error {
	if d.Name == "" {
		return ValidationError{Msg: "name is required"}
	}
	if len(d.Name) > 255 {
		return ValidationError{Msg: "name must be at most 255 characters"}
	}
	return nil
}

type RenameKBDTO struct {
	Name string `json:"name"`
}

func (d RenameKBDTO) Validate() error {
	if d.Name == "" {
		return ValidationError{Msg: "name is required"}
	}
	if len(d.Name) > 255 {
		return ValidationError{Msg: "name must be at most 255 characters"}
	}
	return nil
}
