package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/frahmantamala/kb-management/internal/auth"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetCredentialsByEmail(email string) (*auth.Credentials, error) {
	var (
		creds  auth.Credentials
		status string
	)

	query := `SELECT id, email, password_hash, status FROM users WHERE email = ?`
	row := r.db.Raw(query, email).Row()
	if err := row.Scan(&creds.UserID, &creds.Email, &creds.PasswordHash, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}

	creds.Active = status == "active"
	return &creds, nil
}

func (r *Repository) IsUserActive(userID string) (bool, error) {
	var count int64
	query := `SELECT COUNT(1) FROM users WHERE id = ? AND status = 'active'`
	if err := r.db.Raw(query, userID).Scan(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
