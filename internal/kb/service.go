package kb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	"github.com/google/uuid"
)

// Service handles knowledge base registry logic.
type Service struct {
	repo    Repository
	granter AccessGranter
	lister  AccessLister
	logger  *slog.Logger
}

func NewService(repo Repository, granter AccessGranter, lister AccessLister, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		granter: granter,
		lister:  lister,
		logger:  logger,
	}
}

// Create registers a kb owned by the creator and writes the owner's explicit
// admin grant, so grant listings show the owner without special-casing.
func (s *Service) Create(ctx context.Context, dto CreateKBDTO, ownerID string) (*KnowledgeBase, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	kb := &KnowledgeBase{
		ID:        uuid.NewString(),
		Name:      dto.Name,
		OwnerID:   ownerID,
		Deleted:   false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, kb); err != nil {
		return nil, fmt.Errorf("create kb: %w", err)
	}

	if _, err := s.granter.Grant(ctx, kb.ID, accesscontrol.UserRef(ownerID), accesscontrol.LevelAdmin, ownerID); err != nil {
		s.logger.Error("owner bootstrap grant failed", "kb_id", kb.ID, "owner_id", ownerID, "error", err)
		return nil, fmt.Errorf("bootstrap owner grant: %w", err)
	}

	s.logger.Info("kb created", "kb_id", kb.ID, "name", kb.Name, "owner_id", ownerID)
	return kb, nil
}

func (s *Service) Get(ctx context.Context, id string) (*KnowledgeBase, error) {
	kb, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get kb: %w", err)
	}
	if kb == nil {
		return nil, internal.ErrKBNotFound
	}
	if kb.Deleted {
		return nil, internal.ErrKBDeleted
	}
	return kb, nil
}

func (s *Service) Rename(ctx context.Context, id string, dto RenameKBDTO) (*KnowledgeBase, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	kb, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	kb.Name = dto.Name
	kb.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, kb); err != nil {
		return nil, fmt.Errorf("rename kb: %w", err)
	}

	s.logger.Info("kb renamed", "kb_id", id, "name", dto.Name)
	return kb, nil
}

// Delete soft-deletes the kb. Grants stay on disk but no access check or
// listing resolves them while the flag is set.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("delete kb: %w", err)
	}

	s.logger.Info("kb deleted", "kb_id", id)
	return nil
}

// TouchQA records question answering activity on the kb.
func (s *Service) TouchQA(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.TouchLatestQA(ctx, id, time.Now())
}

// TouchInsert records document ingestion activity on the kb.
func (s *Service) TouchInsert(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.TouchLatestInsert(ctx, id, time.Now())
}

// AccessibleKB pairs a kb with the caller's effective access to it.
type AccessibleKB struct {
	KnowledgeBase
	AccessLevel accesscontrol.Level      `json:"access_level"`
	Provenance  accesscontrol.Provenance `json:"provenance"`
}

// ListAccessible returns every kb the actor can reach at minLevel or above,
// with the level and where it came from attached to each entry.
func (s *Service) ListAccessible(ctx context.Context, actorID string, minLevel accesscontrol.Level) ([]AccessibleKB, error) {
	access, err := s.lister.AccessibleResources(ctx, actorID, minLevel)
	if err != nil {
		return nil, fmt.Errorf("list accessible: %w", err)
	}
	if len(access) == 0 {
		return []AccessibleKB{}, nil
	}

	ids := make([]string, 0, len(access))
	for _, a := range access {
		ids = append(ids, a.KBID)
	}

	kbs, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load kbs: %w", err)
	}

	byID := make(map[string]KnowledgeBase, len(kbs))
	for _, kb := range kbs {
		byID[kb.ID] = kb
	}

	result := make([]AccessibleKB, 0, len(access))
	for _, a := range access {
		kb, ok := byID[a.KBID]
		if !ok || kb.Deleted {
			continue
		}
		result = append(result, AccessibleKB{
			KnowledgeBase: kb,
			AccessLevel:   a.Level,
			Provenance:    a.Provenance,
		})
	}
	return result, nil
}
