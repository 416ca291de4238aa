package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with a demo org: departments, users, a group and shared knowledge bases.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open gorm: %v", err)
		}

		if clearData {
			for _, table := range []string{"kb_access", "knowledge_bases", "group_members", "user_groups", "users", "departments"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)

		// departments: engineering at the root, platform below it, sales at the root
		engID := seedDepartment(db, "Engineering", nil)
		platformID := seedDepartment(db, "Platform", &engID)
		salesID := seedDepartment(db, "Sales", nil)
		_ = platformID

		rootID := seedUser(db, "root@corp.test", "Root", string(hash), "superadmin", nil)
		adminID := seedUser(db, "ops@corp.test", "Ops Admin", string(hash), "admin", nil)
		aliceID := seedUser(db, "alice@corp.test", "Alice", string(hash), "user", &engID)
		bobID := seedUser(db, "bob@corp.test", "Bob", string(hash), "user", &salesID)
		carolID := seedUser(db, "carol@corp.test", "Carol", string(hash), "user", nil)
		_ = rootID
		_ = adminID

		groupID := seedGroup(db, "search-quality", aliceID)
		seedMember(db, groupID, aliceID, "owner")
		seedMember(db, groupID, carolID, "member")

		docsKB := seedKB(db, "product-docs", aliceID)
		playbookKB := seedKB(db, "sales-playbook", bobID)

		// owners hold explicit admin grants, mirroring what kb creation does
		seedGrant(db, docsKB, "user", aliceID, "admin", aliceID)
		seedGrant(db, playbookKB, "user", bobID, "admin", bobID)

		// product-docs is readable by all of engineering and writable by the group
		seedGrant(db, docsKB, "department", engID, "read", aliceID)
		seedGrant(db, docsKB, "group", groupID, "write", aliceID)

		// carol gets direct read on the sales playbook
		seedGrant(db, playbookKB, "user", carolID, "read", bobID)

		fmt.Println("Demo org seeded successfully")
	},
}

func seedDepartment(db *gorm.DB, name string, parentID *string) string {
	var id string
	if err := db.Raw("SELECT id FROM departments WHERE name = ?", name).Row().Scan(&id); err == nil {
		return id
	}

	id = uuid.NewString()
	if err := db.Exec("INSERT INTO departments (id, name, parent_id, created_at, updated_at) VALUES (?, ?, ?, now(), now())",
		id, name, parentID).Error; err != nil {
		log.Fatalf("failed to insert department %s: %v", name, err)
	}
	fmt.Println("Seeded department:", name)
	return id
}

func seedUser(db *gorm.DB, email, name, passwordHash, role string, deptID *string) string {
	var id string
	if err := db.Raw("SELECT id FROM users WHERE email = ?", email).Row().Scan(&id); err == nil {
		return id
	}

	id = uuid.NewString()
	if err := db.Exec("INSERT INTO users (id, email, name, password_hash, role, status, dept_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, 'active', ?, now(), now())",
		id, email, name, passwordHash, role, deptID).Error; err != nil {
		log.Fatalf("failed to insert user %s: %v", email, err)
	}
	fmt.Println("Seeded user:", email)
	return id
}

func seedGroup(db *gorm.DB, name, ownerID string) string {
	var id string
	if err := db.Raw("SELECT id FROM user_groups WHERE name = ?", name).Row().Scan(&id); err == nil {
		return id
	}

	id = uuid.NewString()
	if err := db.Exec("INSERT INTO user_groups (id, name, owner_id, created_at, updated_at) VALUES (?, ?, ?, now(), now())",
		id, name, ownerID).Error; err != nil {
		log.Fatalf("failed to insert group %s: %v", name, err)
	}
	fmt.Println("Seeded group:", name)
	return id
}

func seedMember(db *gorm.DB, groupID, userID, role string) {
	var exists int
	if err := db.Raw("SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID).Row().Scan(&exists); err == nil {
		return
	}

	if err := db.Exec("INSERT INTO group_members (group_id, user_id, member_role, is_active, created_at) VALUES (?, ?, ?, true, now())",
		groupID, userID, role).Error; err != nil {
		log.Fatalf("failed to insert group member: %v", err)
	}
}

func seedKB(db *gorm.DB, name, ownerID string) string {
	var id string
	if err := db.Raw("SELECT id FROM knowledge_bases WHERE name = ?", name).Row().Scan(&id); err == nil {
		return id
	}

	id = uuid.NewString()
	if err := db.Exec("INSERT INTO knowledge_bases (id, name, owner_id, deleted, created_at, updated_at) VALUES (?, ?, ?, false, now(), now())",
		id, name, ownerID).Error; err != nil {
		log.Fatalf("failed to insert kb %s: %v", name, err)
	}
	fmt.Println("Seeded knowledge base:", name)
	return id
}

func seedGrant(db *gorm.DB, kbID, subjectType, subjectID, level, grantedBy string) {
	var exists int
	if err := db.Raw("SELECT 1 FROM kb_access WHERE kb_id = ? AND subject_type = ? AND subject_id = ?",
		kbID, subjectType, subjectID).Row().Scan(&exists); err == nil {
		return
	}

	if err := db.Exec("INSERT INTO kb_access (kb_id, subject_type, subject_id, permission_type, granted_by, granted_at) VALUES (?, ?, ?, ?, ?, now())",
		kbID, subjectType, subjectID, level, grantedBy).Error; err != nil {
		log.Fatalf("failed to insert grant on %s: %v", kbID, err)
	}
}
