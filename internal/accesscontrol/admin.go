package accesscontrol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/kb-management/internal"
)

// SubjectResolver verifies grant subjects against the directory. User subjects
// must be active; departments and groups need only exist.
type SubjectResolver interface {
	SubjectExists(ctx context.Context, subject SubjectRef) (bool, error)
}

// OwnershipStore performs the two-row ownership transfer (kb owner column plus
// the new owner's explicit admin grant) atomically, so no reader ever observes
// ownership moved without the grant row.
type OwnershipStore interface {
	TransferOwner(ctx context.Context, kbID, newOwnerID, requestedBy string) error
}

// AdminService mutates the grant store. It validates inputs against the
// directory and the kb registry before every write; enforcement of "who may
// call this" happens in the transport guards, not here.
type AdminService struct {
	grants    GrantStore
	directory DirectoryReader
	subjects  SubjectResolver
	resources ResourceReader
	ownership OwnershipStore
	events    EventPublisher
	logger    *slog.Logger
}

func NewAdminService(
	grants GrantStore,
	directory DirectoryReader,
	subjects SubjectResolver,
	resources ResourceReader,
	ownership OwnershipStore,
	events EventPublisher,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		grants:    grants,
		directory: directory,
		subjects:  subjects,
		resources: resources,
		ownership: ownership,
		events:    events,
		logger:    logger,
	}
}

// Grant upserts the (kb, subject) entry to the given level and returns the
// prior level for audit purposes (LevelNone when the row did not exist).
func (s *AdminService) Grant(ctx context.Context, kbID string, subject SubjectRef, level Level, grantedBy string) (Level, error) {
	if _, err := ParseLevel(string(level)); err != nil {
		return LevelNone, err
	}
	if err := subject.Validate(); err != nil {
		return LevelNone, err
	}
	if err := s.validateKB(ctx, kbID); err != nil {
		return LevelNone, err
	}
	if err := s.validateGrantor(ctx, grantedBy); err != nil {
		return LevelNone, err
	}

	exists, err := s.subjects.SubjectExists(ctx, subject)
	if err != nil {
		return LevelNone, fmt.Errorf("resolve subject: %w", err)
	}
	if !exists {
		return LevelNone, internal.ErrSubjectNotFound
	}

	prior := LevelNone
	existing, err := s.grants.Find(ctx, kbID, subject)
	if err != nil {
		return LevelNone, fmt.Errorf("prior grant lookup: %w", err)
	}
	if existing != nil {
		prior = existing.Level
	}

	grant := &Grant{
		KBID:        kbID,
		SubjectKind: subject.Kind,
		SubjectID:   subject.ID,
		Level:       level,
		GrantedBy:   grantedBy,
		GrantedAt:   time.Now(),
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return LevelNone, fmt.Errorf("upsert grant: %w", err)
	}

	s.logger.Info("grant set",
		"kb_id", kbID,
		"subject_kind", subject.Kind,
		"subject_id", subject.ID,
		"level", level,
		"prior_level", prior,
		"granted_by", grantedBy)
	s.publish(ctx, EventAccessGranted, kbID, subject, level, grantedBy)

	return prior, nil
}

// RevokeResult reports whether a row was actually removed. Revoking an absent
// grant is not an error; batch callers rely on that.
type RevokeResult struct {
	Removed       bool `json:"removed"`
	AlreadyAbsent bool `json:"already_absent"`
}

func (s *AdminService) Revoke(ctx context.Context, kbID string, subject SubjectRef, revokedBy string) (RevokeResult, error) {
	if err := subject.Validate(); err != nil {
		return RevokeResult{}, err
	}
	if err := s.validateKB(ctx, kbID); err != nil {
		return RevokeResult{}, err
	}
	if err := s.validateGrantor(ctx, revokedBy); err != nil {
		return RevokeResult{}, err
	}

	removed, err := s.grants.Delete(ctx, kbID, subject)
	if err != nil {
		return RevokeResult{}, fmt.Errorf("delete grant: %w", err)
	}
	if !removed {
		return RevokeResult{AlreadyAbsent: true}, nil
	}

	s.logger.Info("grant revoked",
		"kb_id", kbID,
		"subject_kind", subject.Kind,
		"subject_id", subject.ID,
		"revoked_by", revokedBy)
	s.publish(ctx, EventAccessRevoked, kbID, subject, LevelNone, revokedBy)

	return RevokeResult{Removed: true}, nil
}

// BatchSetItem sets one subject's level on the kb; LevelNone revokes.
type BatchSetItem struct {
	Subject SubjectRef `json:"subject"`
	Level   Level      `json:"permission_level"`
}

type BatchFailure struct {
	Subject SubjectRef `json:"subject"`
	Reason  string     `json:"reason"`
}

type BatchResult struct {
	SuccessCount int            `json:"success_count"`
	Failed       []BatchFailure `json:"failed_list"`
}

// BatchSet processes items independently; one bad item never rolls back the
// rest. Partial success is the expected outcome, not an error.
func (s *AdminService) BatchSet(ctx context.Context, kbID string, items []BatchSetItem, grantedBy string) (BatchResult, error) {
	if err := s.validateKB(ctx, kbID); err != nil {
		return BatchResult{}, err
	}
	if err := s.validateGrantor(ctx, grantedBy); err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Failed: []BatchFailure{}}
	for _, item := range items {
		if _, err := ParseBatchLevel(string(item.Level)); err != nil {
			result.Failed = append(result.Failed, BatchFailure{Subject: item.Subject, Reason: err.Error()})
			continue
		}

		var err error
		if item.Level == LevelNone {
			_, err = s.Revoke(ctx, kbID, item.Subject, grantedBy)
		} else {
			_, err = s.Grant(ctx, kbID, item.Subject, item.Level, grantedBy)
		}
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Subject: item.Subject, Reason: err.Error()})
			continue
		}
		result.SuccessCount++
	}

	s.logger.Info("batch grant set finished",
		"kb_id", kbID,
		"success_count", result.SuccessCount,
		"failed_count", len(result.Failed),
		"granted_by", grantedBy)

	return result, nil
}

// TransferOwnership moves the kb to a new owner and ensures the new owner also
// holds an explicit admin grant, so grant listings stay complete. The previous
// owner keeps whatever explicit grant they already had, nothing more.
func (s *AdminService) TransferOwnership(ctx context.Context, kbID, newOwnerID, requestedBy string) error {
	if err := s.validateKB(ctx, kbID); err != nil {
		return err
	}
	if err := s.validateGrantor(ctx, requestedBy); err != nil {
		return err
	}

	newOwner, err := s.directory.FindActor(ctx, newOwnerID)
	if err != nil {
		return fmt.Errorf("resolve new owner: %w", err)
	}
	if newOwner == nil {
		return internal.ErrActorNotFound
	}
	if !newOwner.Active {
		return internal.ErrActorInactive
	}

	if err := s.ownership.TransferOwner(ctx, kbID, newOwnerID, requestedBy); err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}

	s.logger.Info("kb ownership transferred",
		"kb_id", kbID,
		"new_owner_id", newOwnerID,
		"requested_by", requestedBy)
	s.publish(ctx, EventOwnershipTransferred, kbID, UserRef(newOwnerID), LevelAdmin, requestedBy)

	return nil
}

// RevokeAllFor removes every grant held by the subject across all knowledge
// bases. The directory calls this from its deactivation and deletion paths so
// the cascade lives in exactly one place.
func (s *AdminService) RevokeAllFor(ctx context.Context, subject SubjectRef) (int64, error) {
	if err := subject.Validate(); err != nil {
		return 0, err
	}

	removed, err := s.grants.DeleteAllForSubject(ctx, subject)
	if err != nil {
		return 0, fmt.Errorf("cascade revoke: %w", err)
	}

	if removed > 0 {
		s.logger.Info("cascade revoked grants",
			"subject_kind", subject.Kind,
			"subject_id", subject.ID,
			"removed", removed)
	}
	return removed, nil
}

func (s *AdminService) validateKB(ctx context.Context, kbID string) error {
	resource, err := s.resources.FindResource(ctx, kbID)
	if err != nil {
		return fmt.Errorf("resolve kb: %w", err)
	}
	if resource == nil || resource.Deleted {
		return errKBGone(resource)
	}
	return nil
}

func (s *AdminService) validateGrantor(ctx context.Context, userID string) error {
	actor, err := s.directory.FindActor(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve grantor: %w", err)
	}
	if actor == nil {
		return internal.ErrActorNotFound
	}
	if !actor.Active {
		return internal.ErrActorInactive
	}
	return nil
}
