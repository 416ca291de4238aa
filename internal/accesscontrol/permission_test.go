package accesscontrol_test

import (
	"testing"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAccessControl(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AccessControl Module Suite")
}

var _ = Describe("Permission lattice", func() {
	Describe("Satisfies", func() {
		It("orders read < write < admin strictly", func() {
			Expect(accesscontrol.LevelRead.Rank()).To(BeNumerically("<", accesscontrol.LevelWrite.Rank()))
			Expect(accesscontrol.LevelWrite.Rank()).To(BeNumerically("<", accesscontrol.LevelAdmin.Rank()))
		})

		It("is reflexive: every level satisfies itself", func() {
			for _, level := range []accesscontrol.Level{accesscontrol.LevelRead, accesscontrol.LevelWrite, accesscontrol.LevelAdmin} {
				Expect(accesscontrol.Satisfies(level, level)).To(BeTrue())
			}
		})

		It("lets higher levels satisfy lower requirements", func() {
			Expect(accesscontrol.Satisfies(accesscontrol.LevelAdmin, accesscontrol.LevelRead)).To(BeTrue())
			Expect(accesscontrol.Satisfies(accesscontrol.LevelAdmin, accesscontrol.LevelWrite)).To(BeTrue())
			Expect(accesscontrol.Satisfies(accesscontrol.LevelWrite, accesscontrol.LevelRead)).To(BeTrue())
		})

		It("never lets lower levels satisfy higher requirements", func() {
			Expect(accesscontrol.Satisfies(accesscontrol.LevelRead, accesscontrol.LevelWrite)).To(BeFalse())
			Expect(accesscontrol.Satisfies(accesscontrol.LevelRead, accesscontrol.LevelAdmin)).To(BeFalse())
			Expect(accesscontrol.Satisfies(accesscontrol.LevelWrite, accesscontrol.LevelAdmin)).To(BeFalse())
		})

		It("ranks none below read", func() {
			Expect(accesscontrol.Satisfies(accesscontrol.LevelNone, accesscontrol.LevelRead)).To(BeFalse())
			Expect(accesscontrol.LevelNone.Rank()).To(Equal(0))
		})
	})

	Describe("ParseLevel", func() {
		It("accepts the three grantable levels", func() {
			for _, raw := range []string{"read", "write", "admin"} {
				level, err := accesscontrol.ParseLevel(raw)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(level)).To(Equal(raw))
			}
		})

		It("rejects none and unknown strings", func() {
			for _, raw := range []string{"none", "", "READ", "owner", "superadmin"} {
				_, err := accesscontrol.ParseLevel(raw)
				Expect(err).To(MatchError(internal.ErrInvalidPermissionLevel))
			}
		})
	})

	Describe("ParseBatchLevel", func() {
		It("accepts none as a revocation marker", func() {
			level, err := accesscontrol.ParseBatchLevel("none")
			Expect(err).NotTo(HaveOccurred())
			Expect(level).To(Equal(accesscontrol.LevelNone))
		})

		It("still rejects unknown strings", func() {
			_, err := accesscontrol.ParseBatchLevel("full")
			Expect(err).To(MatchError(internal.ErrInvalidPermissionLevel))
		})
	})

	Describe("SubjectRef", func() {
		It("accepts the three subject kinds", func() {
			Expect(accesscontrol.UserRef("u1").Validate()).To(Succeed())
			Expect(accesscontrol.DepartmentRef("d1").Validate()).To(Succeed())
			Expect(accesscontrol.GroupRef("g1").Validate()).To(Succeed())
		})

		It("rejects unknown kinds", func() {
			ref := accesscontrol.SubjectRef{Kind: "team", ID: "t1"}
			Expect(ref.Validate()).To(MatchError(internal.ErrInvalidSubjectKind))
		})

		It("rejects empty subject ids", func() {
			Expect(accesscontrol.UserRef("").Validate()).To(HaveOccurred())
		})
	})
})
