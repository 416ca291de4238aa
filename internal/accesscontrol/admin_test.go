package accesscontrol_test

import (
	"context"
	"sync"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	"github.com/frahmantamala/kb-management/internal/core/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

var _ = Describe("AdminService", func() {
	var (
		store     *memStore
		publisher *capturingPublisher
		service   *accesscontrol.AdminService
		ctx       context.Context
	)

	BeforeEach(func() {
		store = newMemStore()
		publisher = &capturingPublisher{}
		service = accesscontrol.NewAdminService(store, store, store, store, store, publisher, testLogger())
		ctx = context.Background()

		store.addActor("owner-1", accesscontrol.RoleUser, "", true)
		store.addActor("bob", accesscontrol.RoleUser, "", true)
		store.addResource("kb-1", "owner-1", false)
	})

	Describe("Grant", func() {
		It("creates a grant and reports the prior level as none", func() {
			prior, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelRead, "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(prior).To(Equal(accesscontrol.LevelNone))

			grant, err := store.Find(ctx, "kb-1", accesscontrol.UserRef("bob"))
			Expect(err).NotTo(HaveOccurred())
			Expect(grant).NotTo(BeNil())
			Expect(grant.Level).To(Equal(accesscontrol.LevelRead))
			Expect(grant.GrantedBy).To(Equal("owner-1"))
		})

		It("overwrites an existing grant and returns its prior level", func() {
			_, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelRead, "owner-1")
			Expect(err).NotTo(HaveOccurred())

			prior, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelAdmin, "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(prior).To(Equal(accesscontrol.LevelRead))

			grant, _ := store.Find(ctx, "kb-1", accesscontrol.UserRef("bob"))
			Expect(grant.Level).To(Equal(accesscontrol.LevelAdmin))
		})

		It("rejects ungrantable levels", func() {
			_, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelNone, "owner-1")
			Expect(err).To(MatchError(internal.ErrInvalidPermissionLevel))
		})

		It("rejects unknown subject kinds", func() {
			_, err := service.Grant(ctx, "kb-1", accesscontrol.SubjectRef{Kind: "team", ID: "t"}, accesscontrol.LevelRead, "owner-1")
			Expect(err).To(MatchError(internal.ErrInvalidSubjectKind))
		})

		It("fails for missing and deleted kbs", func() {
			_, err := service.Grant(ctx, "kb-missing", accesscontrol.UserRef("bob"), accesscontrol.LevelRead, "owner-1")
			Expect(err).To(MatchError(internal.ErrKBNotFound))

			store.addResource("kb-gone", "owner-1", true)
			_, err = service.Grant(ctx, "kb-gone", accesscontrol.UserRef("bob"), accesscontrol.LevelRead, "owner-1")
			Expect(err).To(MatchError(internal.ErrKBDeleted))
		})

		It("fails when the grantor is missing or inactive", func() {
			_, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelRead, "ghost")
			Expect(err).To(MatchError(internal.ErrActorNotFound))

			store.addActor("former", accesscontrol.RoleUser, "", false)
			_, err = service.Grant(ctx, "kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelRead, "former")
			Expect(err).To(MatchError(internal.ErrActorInactive))
		})

		It("fails when the subject does not exist", func() {
			_, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("nobody"), accesscontrol.LevelRead, "owner-1")
			Expect(err).To(MatchError(internal.ErrSubjectNotFound))
		})

		It("refuses inactive user subjects", func() {
			store.addActor("former", accesscontrol.RoleUser, "", false)
			_, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("former"), accesscontrol.LevelRead, "owner-1")
			Expect(err).To(MatchError(internal.ErrSubjectNotFound))
		})

		It("publishes an access.granted event", func() {
			_, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelRead, "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.types()).To(ContainElement(accesscontrol.EventAccessGranted))
		})
	})

	Describe("Revoke", func() {
		It("removes an existing grant", func() {
			_, err := service.Grant(ctx, "kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelRead, "owner-1")
			Expect(err).NotTo(HaveOccurred())

			result, err := service.Revoke(ctx, "kb-1", accesscontrol.UserRef("bob"), "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Removed).To(BeTrue())

			grant, _ := store.Find(ctx, "kb-1", accesscontrol.UserRef("bob"))
			Expect(grant).To(BeNil())
			Expect(publisher.types()).To(ContainElement(accesscontrol.EventAccessRevoked))
		})

		It("is idempotent for absent grants", func() {
			result, err := service.Revoke(ctx, "kb-1", accesscontrol.UserRef("bob"), "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Removed).To(BeFalse())
			Expect(result.AlreadyAbsent).To(BeTrue())
		})
	})

	Describe("BatchSet", func() {
		It("processes items independently and reports per-item failures", func() {
			store.addGroup("grp-1")
			store.addGrant("kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelWrite)

			result, err := service.BatchSet(ctx, "kb-1", []accesscontrol.BatchSetItem{
				{Subject: accesscontrol.UserRef("bob"), Level: accesscontrol.LevelNone},
				{Subject: accesscontrol.GroupRef("grp-1"), Level: accesscontrol.LevelRead},
				{Subject: accesscontrol.UserRef("nobody"), Level: accesscontrol.LevelRead},
				{Subject: accesscontrol.UserRef("bob"), Level: accesscontrol.Level("full")},
			}, "owner-1")
			Expect(err).NotTo(HaveOccurred())

			Expect(result.SuccessCount).To(Equal(2))
			Expect(result.Failed).To(HaveLen(2))

			removed, _ := store.Find(ctx, "kb-1", accesscontrol.UserRef("bob"))
			Expect(removed).To(BeNil())

			added, _ := store.Find(ctx, "kb-1", accesscontrol.GroupRef("grp-1"))
			Expect(added).NotTo(BeNil())
			Expect(added.Level).To(Equal(accesscontrol.LevelRead))
		})

		It("fails whole batches only for invalid kb or grantor", func() {
			_, err := service.BatchSet(ctx, "kb-missing", nil, "owner-1")
			Expect(err).To(MatchError(internal.ErrKBNotFound))

			_, err = service.BatchSet(ctx, "kb-1", nil, "ghost")
			Expect(err).To(MatchError(internal.ErrActorNotFound))
		})
	})

	Describe("TransferOwnership", func() {
		It("moves ownership and upserts the new owner's admin grant", func() {
			err := service.TransferOwnership(ctx, "kb-1", "bob", "owner-1")
			Expect(err).NotTo(HaveOccurred())

			resource, _ := store.FindResource(ctx, "kb-1")
			Expect(resource.OwnerID).To(Equal("bob"))

			grant, _ := store.Find(ctx, "kb-1", accesscontrol.UserRef("bob"))
			Expect(grant).NotTo(BeNil())
			Expect(grant.Level).To(Equal(accesscontrol.LevelAdmin))
			Expect(publisher.types()).To(ContainElement(accesscontrol.EventOwnershipTransferred))
		})

		It("refuses missing or inactive new owners", func() {
			err := service.TransferOwnership(ctx, "kb-1", "ghost", "owner-1")
			Expect(err).To(MatchError(internal.ErrActorNotFound))

			store.addActor("former", accesscontrol.RoleUser, "", false)
			err = service.TransferOwnership(ctx, "kb-1", "former", "owner-1")
			Expect(err).To(MatchError(internal.ErrActorInactive))
		})
	})

	Describe("RevokeAllFor", func() {
		It("removes the subject's grants across all kbs", func() {
			store.addResource("kb-2", "owner-1", false)
			store.addGrant("kb-1", accesscontrol.UserRef("bob"), accesscontrol.LevelRead)
			store.addGrant("kb-2", accesscontrol.UserRef("bob"), accesscontrol.LevelWrite)
			store.addGrant("kb-1", accesscontrol.UserRef("owner-1"), accesscontrol.LevelAdmin)

			removed, err := service.RevokeAllFor(ctx, accesscontrol.UserRef("bob"))
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(2)))

			untouched, _ := store.Find(ctx, "kb-1", accesscontrol.UserRef("owner-1"))
			Expect(untouched).NotTo(BeNil())
		})

		It("validates the subject", func() {
			_, err := service.RevokeAllFor(ctx, accesscontrol.SubjectRef{Kind: "team", ID: "t"})
			Expect(err).To(MatchError(internal.ErrInvalidSubjectKind))
		})
	})
})
