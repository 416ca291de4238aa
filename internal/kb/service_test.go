package kb_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	"github.com/frahmantamala/kb-management/internal/kb"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestKB(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "KB Module Suite")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memKBRepo struct {
	kbs map[string]*kb.KnowledgeBase
}

func newMemKBRepo() *memKBRepo {
	return &memKBRepo{kbs: make(map[string]*kb.KnowledgeBase)}
}

func (m *memKBRepo) Create(_ context.Context, record *kb.KnowledgeBase) error {
	copied := *record
	m.kbs[record.ID] = &copied
	return nil
}

func (m *memKBRepo) GetByID(_ context.Context, id string) (*kb.KnowledgeBase, error) {
	record, ok := m.kbs[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (m *memKBRepo) Update(_ context.Context, record *kb.KnowledgeBase) error {
	copied := *record
	m.kbs[record.ID] = &copied
	return nil
}

func (m *memKBRepo) SoftDelete(_ context.Context, id string) error {
	if record, ok := m.kbs[id]; ok {
		record.Deleted = true
	}
	return nil
}

func (m *memKBRepo) TouchLatestQA(_ context.Context, id string, at time.Time) error {
	if record, ok := m.kbs[id]; ok {
		record.LatestQAAt = &at
	}
	return nil
}

func (m *memKBRepo) TouchLatestInsert(_ context.Context, id string, at time.Time) error {
	if record, ok := m.kbs[id]; ok {
		record.LatestInsertAt = &at
	}
	return nil
}

func (m *memKBRepo) ListByIDs(_ context.Context, ids []string) ([]kb.KnowledgeBase, error) {
	var result []kb.KnowledgeBase
	for _, id := range ids {
		if record, ok := m.kbs[id]; ok {
			result = append(result, *record)
		}
	}
	return result, nil
}

func (m *memKBRepo) add(id, name, ownerID string, deleted bool) {
	m.kbs[id] = &kb.KnowledgeBase{ID: id, Name: name, OwnerID: ownerID, Deleted: deleted}
}

type grantCall struct {
	kbID    string
	subject accesscontrol.SubjectRef
	level   accesscontrol.Level
	by      string
}

type recordingGranter struct {
	calls []grantCall
}

func (g *recordingGranter) Grant(_ context.Context, kbID string, subject accesscontrol.SubjectRef, level accesscontrol.Level, grantedBy string) (accesscontrol.Level, error) {
	g.calls = append(g.calls, grantCall{kbID: kbID, subject: subject, level: level, by: grantedBy})
	return accesscontrol.LevelNone, nil
}

type stubLister struct {
	access []accesscontrol.ResourceAccess
}

func (l *stubLister) AccessibleResources(_ context.Context, _ string, _ accesscontrol.Level) ([]accesscontrol.ResourceAccess, error) {
	return l.access, nil
}

var _ = Describe("KB Service", func() {
	var (
		repo    *memKBRepo
		granter *recordingGranter
		lister  *stubLister
		service *kb.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		repo = newMemKBRepo()
		granter = &recordingGranter{}
		lister = &stubLister{}
		service = kb.NewService(repo, granter, lister, testLogger())
		ctx = context.Background()
	})

	Describe("Create", func() {
		It("registers the kb and bootstraps the owner's admin grant", func() {
			created, err := service.Create(ctx, kb.CreateKBDTO{Name: "product-docs"}, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(created.OwnerID).To(Equal("alice"))
			Expect(created.Deleted).To(BeFalse())

			Expect(granter.calls).To(HaveLen(1))
			Expect(granter.calls[0].kbID).To(Equal(created.ID))
			Expect(granter.calls[0].subject).To(Equal(accesscontrol.UserRef("alice")))
			Expect(granter.calls[0].level).To(Equal(accesscontrol.LevelAdmin))
			Expect(granter.calls[0].by).To(Equal("alice"))
		})

		It("rejects empty names", func() {
			_, err := service.Create(ctx, kb.CreateKBDTO{}, "alice")
			Expect(err).To(HaveOccurred())
			Expect(granter.calls).To(BeEmpty())
		})
	})

	Describe("Get", func() {
		It("fails for unknown kbs", func() {
			_, err := service.Get(ctx, "missing")
			Expect(err).To(MatchError(internal.ErrKBNotFound))
		})

		It("fails for deleted kbs", func() {
			repo.add("kb-gone", "gone", "alice", true)

			_, err := service.Get(ctx, "kb-gone")
			Expect(err).To(MatchError(internal.ErrKBDeleted))
		})
	})

	Describe("Delete", func() {
		It("soft-deletes so a second delete reports the kb as gone", func() {
			repo.add("kb-1", "docs", "alice", false)

			Expect(service.Delete(ctx, "kb-1")).To(Succeed())
			Expect(repo.kbs["kb-1"].Deleted).To(BeTrue())

			Expect(service.Delete(ctx, "kb-1")).To(MatchError(internal.ErrKBDeleted))
		})
	})

	Describe("Rename", func() {
		It("updates the name on live kbs only", func() {
			repo.add("kb-1", "docs", "alice", false)

			renamed, err := service.Rename(ctx, "kb-1", kb.RenameKBDTO{Name: "handbook"})
			Expect(err).NotTo(HaveOccurred())
			Expect(renamed.Name).To(Equal("handbook"))

			repo.add("kb-gone", "gone", "alice", true)
			_, err = service.Rename(ctx, "kb-gone", kb.RenameKBDTO{Name: "x"})
			Expect(err).To(MatchError(internal.ErrKBDeleted))
		})
	})

	Describe("Activity timestamps", func() {
		It("records qa and ingestion activity", func() {
			repo.add("kb-1", "docs", "alice", false)

			Expect(service.TouchQA(ctx, "kb-1")).To(Succeed())
			Expect(service.TouchInsert(ctx, "kb-1")).To(Succeed())

			Expect(repo.kbs["kb-1"].LatestQAAt).NotTo(BeNil())
			Expect(repo.kbs["kb-1"].LatestInsertAt).NotTo(BeNil())
		})

		It("refuses deleted kbs", func() {
			repo.add("kb-gone", "gone", "alice", true)
			Expect(service.TouchQA(ctx, "kb-gone")).To(MatchError(internal.ErrKBDeleted))
		})
	})

	Describe("ListAccessible", func() {
		It("joins access entries with kb rows and keeps the provenance", func() {
			repo.add("kb-1", "docs", "alice", false)
			repo.add("kb-2", "playbook", "bob", false)
			lister.access = []accesscontrol.ResourceAccess{
				{KBID: "kb-1", Level: accesscontrol.LevelAdmin, Provenance: accesscontrol.ProvenanceOwner},
				{KBID: "kb-2", Level: accesscontrol.LevelRead, Provenance: accesscontrol.ProvenanceDepartment},
			}

			result, err := service.ListAccessible(ctx, "alice", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(2))
			Expect(result[0].Name).To(Equal("docs"))
			Expect(result[0].AccessLevel).To(Equal(accesscontrol.LevelAdmin))
			Expect(result[1].Provenance).To(Equal(accesscontrol.ProvenanceDepartment))
		})

		It("skips entries whose kb vanished or was deleted", func() {
			repo.add("kb-gone", "gone", "alice", true)
			lister.access = []accesscontrol.ResourceAccess{
				{KBID: "kb-gone", Level: accesscontrol.LevelRead, Provenance: accesscontrol.ProvenanceDirect},
				{KBID: "kb-missing", Level: accesscontrol.LevelRead, Provenance: accesscontrol.ProvenanceDirect},
			}

			result, err := service.ListAccessible(ctx, "alice", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
		})

		It("returns an empty list when nothing is reachable", func() {
			result, err := service.ListAccessible(ctx, "nobody", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
		})
	})
})
