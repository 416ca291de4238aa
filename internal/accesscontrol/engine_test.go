package accesscontrol_test

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type grantKey struct {
	kbID string
	kind accesscontrol.SubjectKind
	id   string
}

// memStore is an in-memory implementation of every accesscontrol store
// interface, shared by the engine and admin service specs.
type memStore struct {
	grants      map[grantKey]*accesscontrol.Grant
	actors      map[string]*accesscontrol.Actor
	groupsOf    map[string][]string
	departments map[string]bool
	groupSet    map[string]bool
	resources   map[string]*accesscontrol.Resource
	failWith    error
}

func newMemStore() *memStore {
	return &memStore{
		grants:      make(map[grantKey]*accesscontrol.Grant),
		actors:      make(map[string]*accesscontrol.Actor),
		groupsOf:    make(map[string][]string),
		departments: make(map[string]bool),
		groupSet:    make(map[string]bool),
		resources:   make(map[string]*accesscontrol.Resource),
	}
}

func (m *memStore) addActor(id string, role accesscontrol.Role, deptID string, active bool) {
	m.actors[id] = &accesscontrol.Actor{ID: id, Role: role, DepartmentID: deptID, Active: active}
	if deptID != "" {
		m.departments[deptID] = true
	}
}

func (m *memStore) addResource(id, ownerID string, deleted bool) {
	m.resources[id] = &accesscontrol.Resource{ID: id, OwnerID: ownerID, Deleted: deleted}
}

func (m *memStore) addGroup(groupID string, memberIDs ...string) {
	m.groupSet[groupID] = true
	for _, userID := range memberIDs {
		m.groupsOf[userID] = append(m.groupsOf[userID], groupID)
	}
}

func (m *memStore) addGrant(kbID string, subject accesscontrol.SubjectRef, level accesscontrol.Level) {
	m.grants[grantKey{kbID, subject.Kind, subject.ID}] = &accesscontrol.Grant{
		KBID:        kbID,
		SubjectKind: subject.Kind,
		SubjectID:   subject.ID,
		Level:       level,
		GrantedBy:   "seed",
		GrantedAt:   time.Now(),
	}
}

// ---- GrantStore ----

func (m *memStore) Find(_ context.Context, kbID string, subject accesscontrol.SubjectRef) (*accesscontrol.Grant, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	grant, ok := m.grants[grantKey{kbID, subject.Kind, subject.ID}]
	if !ok {
		return nil, nil
	}
	copied := *grant
	return &copied, nil
}

func (m *memStore) Upsert(_ context.Context, grant *accesscontrol.Grant) error {
	if m.failWith != nil {
		return m.failWith
	}
	copied := *grant
	m.grants[grantKey{grant.KBID, grant.SubjectKind, grant.SubjectID}] = &copied
	return nil
}

func (m *memStore) Delete(_ context.Context, kbID string, subject accesscontrol.SubjectRef) (bool, error) {
	if m.failWith != nil {
		return false, m.failWith
	}
	key := grantKey{kbID, subject.Kind, subject.ID}
	if _, ok := m.grants[key]; !ok {
		return false, nil
	}
	delete(m.grants, key)
	return true, nil
}

func (m *memStore) DeleteAllForSubject(_ context.Context, subject accesscontrol.SubjectRef) (int64, error) {
	if m.failWith != nil {
		return 0, m.failWith
	}
	var removed int64
	for key := range m.grants {
		if key.kind == subject.Kind && key.id == subject.ID {
			delete(m.grants, key)
			removed++
		}
	}
	return removed, nil
}

func (m *memStore) ListByKB(_ context.Context, kbID string) ([]accesscontrol.Grant, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var grants []accesscontrol.Grant
	for key, grant := range m.grants {
		if key.kbID == kbID {
			grants = append(grants, *grant)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].SubjectID < grants[j].SubjectID })
	return grants, nil
}

func (m *memStore) ListForSubjects(_ context.Context, subjects []accesscontrol.SubjectRef) ([]accesscontrol.Grant, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var grants []accesscontrol.Grant
	for _, subject := range subjects {
		for key, grant := range m.grants {
			if key.kind != subject.Kind || key.id != subject.ID {
				continue
			}
			if resource, ok := m.resources[key.kbID]; !ok || resource.Deleted {
				continue
			}
			grants = append(grants, *grant)
		}
	}
	return grants, nil
}

// ---- DirectoryReader / SubjectResolver ----

func (m *memStore) FindActor(_ context.Context, userID string) (*accesscontrol.Actor, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	actor, ok := m.actors[userID]
	if !ok {
		return nil, nil
	}
	copied := *actor
	return &copied, nil
}

func (m *memStore) ActiveGroupIDs(_ context.Context, userID string) ([]string, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.groupsOf[userID], nil
}

func (m *memStore) SubjectExists(_ context.Context, subject accesscontrol.SubjectRef) (bool, error) {
	if m.failWith != nil {
		return false, m.failWith
	}
	switch subject.Kind {
	case accesscontrol.SubjectUser:
		actor, ok := m.actors[subject.ID]
		return ok && actor.Active, nil
	case accesscontrol.SubjectDepartment:
		return m.departments[subject.ID], nil
	case accesscontrol.SubjectGroup:
		return m.groupSet[subject.ID], nil
	}
	return false, nil
}

// ---- ResourceReader / OwnershipStore ----

func (m *memStore) FindResource(_ context.Context, kbID string) (*accesscontrol.Resource, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	resource, ok := m.resources[kbID]
	if !ok {
		return nil, nil
	}
	copied := *resource
	return &copied, nil
}

func (m *memStore) ListOwned(_ context.Context, ownerID string) ([]accesscontrol.Resource, error) {
	var resources []accesscontrol.Resource
	for _, resource := range m.resources {
		if resource.OwnerID == ownerID && !resource.Deleted {
			resources = append(resources, *resource)
		}
	}
	return resources, nil
}

func (m *memStore) ListAll(_ context.Context) ([]accesscontrol.Resource, error) {
	var resources []accesscontrol.Resource
	for _, resource := range m.resources {
		if !resource.Deleted {
			resources = append(resources, *resource)
		}
	}
	return resources, nil
}

func (m *memStore) UpdateOwner(_ context.Context, kbID, newOwnerID string) error {
	resource, ok := m.resources[kbID]
	if !ok {
		return nil
	}
	resource.OwnerID = newOwnerID
	return nil
}

func (m *memStore) TransferOwner(ctx context.Context, kbID, newOwnerID, requestedBy string) error {
	if err := m.UpdateOwner(ctx, kbID, newOwnerID); err != nil {
		return err
	}
	return m.Upsert(ctx, &accesscontrol.Grant{
		KBID:        kbID,
		SubjectKind: accesscontrol.SubjectUser,
		SubjectID:   newOwnerID,
		Level:       accesscontrol.LevelAdmin,
		GrantedBy:   requestedBy,
		GrantedAt:   time.Now(),
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("Engine", func() {
	var (
		store  *memStore
		engine *accesscontrol.Engine
		ctx    context.Context
	)

	BeforeEach(func() {
		store = newMemStore()
		engine = accesscontrol.NewEngine(store, store, store, testLogger())
		ctx = context.Background()

		store.addActor("owner-1", accesscontrol.RoleUser, "", true)
		store.addResource("kb-1", "owner-1", false)
	})

	Describe("CheckAccess", func() {
		It("rejects unknown required levels with an error", func() {
			_, err := engine.CheckAccess(ctx, "owner-1", "kb-1", accesscontrol.Level("full"))
			Expect(err).To(HaveOccurred())
		})

		It("denies with kb_not_found for missing kbs", func() {
			decision, err := engine.CheckAccess(ctx, "owner-1", "kb-missing", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Denial).To(Equal(accesscontrol.DenialKBNotFound))
		})

		It("treats deleted kbs as not found, even for superadmins", func() {
			store.addActor("root", accesscontrol.RoleSuperAdmin, "", true)
			store.addResource("kb-gone", "owner-1", true)

			decision, err := engine.CheckAccess(ctx, "root", "kb-gone", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Denial).To(Equal(accesscontrol.DenialKBNotFound))
		})

		It("denies unknown actors", func() {
			decision, err := engine.CheckAccess(ctx, "ghost", "kb-1", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Denial).To(Equal(accesscontrol.DenialActorNotActive))
		})

		It("denies inactive actors regardless of their grants", func() {
			store.addActor("former", accesscontrol.RoleUser, "", false)
			store.addGrant("kb-1", accesscontrol.UserRef("former"), accesscontrol.LevelAdmin)

			decision, err := engine.CheckAccess(ctx, "former", "kb-1", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Denial).To(Equal(accesscontrol.DenialActorNotActive))
		})

		It("grants superadmins admin everywhere", func() {
			store.addActor("root", accesscontrol.RoleSuperAdmin, "", true)

			decision, err := engine.CheckAccess(ctx, "root", "kb-1", accesscontrol.LevelAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Level).To(Equal(accesscontrol.LevelAdmin))
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceRole))
		})

		It("caps plain admins at write on kbs they do not own", func() {
			store.addActor("ops", accesscontrol.RoleAdmin, "", true)

			decision, err := engine.CheckAccess(ctx, "ops", "kb-1", accesscontrol.LevelWrite)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Level).To(Equal(accesscontrol.LevelWrite))
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceRole))

			decision, err = engine.CheckAccess(ctx, "ops", "kb-1", accesscontrol.LevelAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Denial).To(Equal(accesscontrol.DenialInsufficient))
		})

		It("lets an admin role holder reach admin through an explicit grant", func() {
			store.addActor("ops", accesscontrol.RoleAdmin, "", true)
			store.addGrant("kb-1", accesscontrol.UserRef("ops"), accesscontrol.LevelAdmin)

			decision, err := engine.CheckAccess(ctx, "ops", "kb-1", accesscontrol.LevelAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceDirect))
		})

		It("grants owners admin on their own kb", func() {
			decision, err := engine.CheckAccess(ctx, "owner-1", "kb-1", accesscontrol.LevelAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Level).To(Equal(accesscontrol.LevelAdmin))
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceOwner))
		})

		It("resolves direct grants", func() {
			store.addActor("reader", accesscontrol.RoleUser, "", true)
			store.addGrant("kb-1", accesscontrol.UserRef("reader"), accesscontrol.LevelRead)

			decision, err := engine.CheckAccess(ctx, "reader", "kb-1", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceDirect))

			decision, err = engine.CheckAccess(ctx, "reader", "kb-1", accesscontrol.LevelWrite)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Denial).To(Equal(accesscontrol.DenialInsufficient))
		})

		It("resolves department grants by exact department id only", func() {
			store.addActor("eng-user", accesscontrol.RoleUser, "dept-child", true)
			store.departments["dept-parent"] = true
			store.addGrant("kb-1", accesscontrol.DepartmentRef("dept-parent"), accesscontrol.LevelWrite)

			decision, err := engine.CheckAccess(ctx, "eng-user", "kb-1", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())

			store.addGrant("kb-1", accesscontrol.DepartmentRef("dept-child"), accesscontrol.LevelWrite)
			decision, err = engine.CheckAccess(ctx, "eng-user", "kb-1", accesscontrol.LevelWrite)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceDepartment))
		})

		It("resolves group grants through active memberships", func() {
			store.addActor("member", accesscontrol.RoleUser, "", true)
			store.addGroup("grp-1", "member")
			store.addGrant("kb-1", accesscontrol.GroupRef("grp-1"), accesscontrol.LevelWrite)

			decision, err := engine.CheckAccess(ctx, "member", "kb-1", accesscontrol.LevelWrite)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceGroup))
		})

		It("aggregates sources by maximum rank", func() {
			store.addActor("multi", accesscontrol.RoleUser, "dept-1", true)
			store.addGroup("grp-1", "multi")
			store.addGrant("kb-1", accesscontrol.UserRef("multi"), accesscontrol.LevelRead)
			store.addGrant("kb-1", accesscontrol.DepartmentRef("dept-1"), accesscontrol.LevelRead)
			store.addGrant("kb-1", accesscontrol.GroupRef("grp-1"), accesscontrol.LevelWrite)

			decision, err := engine.CheckAccess(ctx, "multi", "kb-1", accesscontrol.LevelWrite)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Level).To(Equal(accesscontrol.LevelWrite))
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceGroup))
		})

		It("breaks rank ties in favor of the direct grant", func() {
			store.addActor("tied", accesscontrol.RoleUser, "dept-1", true)
			store.addGrant("kb-1", accesscontrol.UserRef("tied"), accesscontrol.LevelRead)
			store.addGrant("kb-1", accesscontrol.DepartmentRef("dept-1"), accesscontrol.LevelRead)

			decision, err := engine.CheckAccess(ctx, "tied", "kb-1", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceDirect))
		})

		It("short-circuits on a direct admin grant", func() {
			store.addActor("delegate", accesscontrol.RoleUser, "", true)
			store.addGrant("kb-1", accesscontrol.UserRef("delegate"), accesscontrol.LevelAdmin)

			decision, err := engine.CheckAccess(ctx, "delegate", "kb-1", accesscontrol.LevelAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceDirect))
		})

		It("denies users with no relationship to the kb", func() {
			store.addActor("stranger", accesscontrol.RoleUser, "", true)

			decision, err := engine.CheckAccess(ctx, "stranger", "kb-1", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Denial).To(Equal(accesscontrol.DenialInsufficient))
		})
	})

	Describe("EffectiveAccess", func() {
		It("floors admin role holders at write", func() {
			store.addActor("ops", accesscontrol.RoleAdmin, "", true)
			store.addGrant("kb-1", accesscontrol.UserRef("ops"), accesscontrol.LevelRead)

			decision, err := engine.EffectiveAccess(ctx, "ops", "kb-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Level).To(Equal(accesscontrol.LevelWrite))
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceRole))
		})

		It("reports a direct admin grant above the role floor", func() {
			store.addActor("ops", accesscontrol.RoleAdmin, "", true)
			store.addGrant("kb-1", accesscontrol.UserRef("ops"), accesscontrol.LevelAdmin)

			decision, err := engine.EffectiveAccess(ctx, "ops", "kb-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Level).To(Equal(accesscontrol.LevelAdmin))
			Expect(decision.Provenance).To(Equal(accesscontrol.ProvenanceDirect))
		})

		It("denies plain users without grants", func() {
			store.addActor("stranger", accesscontrol.RoleUser, "", true)

			decision, err := engine.EffectiveAccess(ctx, "stranger", "kb-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
		})
	})

	Describe("ListGrants", func() {
		It("fails for deleted kbs", func() {
			store.addResource("kb-gone", "owner-1", true)
			_, err := engine.ListGrants(ctx, "kb-gone")
			Expect(err).To(HaveOccurred())
		})

		It("lists every explicit grant on the kb", func() {
			store.addGrant("kb-1", accesscontrol.UserRef("a"), accesscontrol.LevelRead)
			store.addGrant("kb-1", accesscontrol.DepartmentRef("d"), accesscontrol.LevelWrite)
			store.addGrant("kb-other", accesscontrol.UserRef("a"), accesscontrol.LevelRead)
			store.addResource("kb-other", "owner-1", false)

			grants, err := engine.ListGrants(ctx, "kb-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(grants).To(HaveLen(2))
		})
	})

	Describe("AccessibleResources", func() {
		BeforeEach(func() {
			store.addActor("alice", accesscontrol.RoleUser, "dept-1", true)
			store.addResource("kb-owned", "alice", false)
			store.addResource("kb-dept", "owner-1", false)
			store.addResource("kb-deleted", "owner-1", true)
			store.addGrant("kb-dept", accesscontrol.DepartmentRef("dept-1"), accesscontrol.LevelRead)
			store.addGrant("kb-deleted", accesscontrol.UserRef("alice"), accesscontrol.LevelAdmin)
		})

		It("combines ownership and grants, excluding deleted kbs", func() {
			access, err := engine.AccessibleResources(ctx, "alice", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, 0, len(access))
			for _, a := range access {
				ids = append(ids, a.KBID)
			}
			Expect(ids).To(ConsistOf("kb-owned", "kb-dept"))
		})

		It("filters by minimum level", func() {
			access, err := engine.AccessibleResources(ctx, "alice", accesscontrol.LevelAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(access).To(HaveLen(1))
			Expect(access[0].KBID).To(Equal("kb-owned"))
			Expect(access[0].Provenance).To(Equal(accesscontrol.ProvenanceOwner))
		})

		It("lists everything for superadmins", func() {
			store.addActor("root", accesscontrol.RoleSuperAdmin, "", true)

			access, err := engine.AccessibleResources(ctx, "root", accesscontrol.LevelAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(access).To(HaveLen(3))
		})

		It("lists everything at write for plain admins", func() {
			store.addActor("ops", accesscontrol.RoleAdmin, "", true)

			access, err := engine.AccessibleResources(ctx, "ops", accesscontrol.LevelWrite)
			Expect(err).NotTo(HaveOccurred())
			Expect(access).To(HaveLen(3))
			for _, a := range access {
				Expect(a.Level).To(Equal(accesscontrol.LevelWrite))
			}

			access, err = engine.AccessibleResources(ctx, "ops", accesscontrol.LevelAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(access).To(BeEmpty())
		})

		It("returns nothing for inactive actors", func() {
			store.addActor("former", accesscontrol.RoleUser, "", false)

			access, err := engine.AccessibleResources(ctx, "former", accesscontrol.LevelRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(access).To(BeEmpty())
		})
	})
})
