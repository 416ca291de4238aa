package accesscontrol

import (
	"github.com/frahmantamala/kb-management/internal"
)

// Level is one of the three permission levels forming a strict total order:
// read < write < admin.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"

	// LevelNone is not a grantable level. It appears only in batch items
	// (meaning "revoke") and as the prior level returned by a first-time grant.
	LevelNone Level = "none"
)

var levelRanks = map[Level]int{
	LevelRead:  1,
	LevelWrite: 2,
	LevelAdmin: 3,
}

// Rank returns the position of the level in the total order; unknown levels
// and LevelNone rank 0, below read.
func (l Level) Rank() int {
	return levelRanks[l]
}

// Satisfies reports whether a granted level is enough for a required one.
func Satisfies(granted, required Level) bool {
	return granted.Rank() >= required.Rank()
}

// ParseLevel validates a grantable permission level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelRead, LevelWrite, LevelAdmin:
		return Level(s), nil
	}
	return "", internal.ErrInvalidPermissionLevel
}

// ParseBatchLevel additionally accepts "none", which batch items use to revoke.
func ParseBatchLevel(s string) (Level, error) {
	if Level(s) == LevelNone {
		return LevelNone, nil
	}
	return ParseLevel(s)
}

// SubjectKind is the closed set of entities a grant can be made to.
type SubjectKind string

const (
	SubjectUser       SubjectKind = "user"
	SubjectDepartment SubjectKind = "department"
	SubjectGroup      SubjectKind = "group"
)

// SubjectRef identifies a grant subject. The kind is a closed variant so that
// invalid-kind strings are rejected at the boundary instead of surfacing as
// runtime query errors.
type SubjectRef struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

func (s SubjectRef) Validate() error {
	switch s.Kind {
	case SubjectUser, SubjectDepartment, SubjectGroup:
	default:
		return internal.ErrInvalidSubjectKind
	}
	if s.ID == "" {
		return internal.ErrSubjectNotFound
	}
	return nil
}

func UserRef(id string) SubjectRef       { return SubjectRef{Kind: SubjectUser, ID: id} }
func DepartmentRef(id string) SubjectRef { return SubjectRef{Kind: SubjectDepartment, ID: id} }
func GroupRef(id string) SubjectRef      { return SubjectRef{Kind: SubjectGroup, ID: id} }

// Provenance records which mechanism produced the winning access decision.
type Provenance string

const (
	ProvenanceNone       Provenance = ""
	ProvenanceRole       Provenance = "role"
	ProvenanceOwner      Provenance = "owner"
	ProvenanceDirect     Provenance = "direct"
	ProvenanceDepartment Provenance = "department"
	ProvenanceGroup      Provenance = "group"
)
