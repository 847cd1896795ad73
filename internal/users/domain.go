package users

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// User represents a registered account.
type User struct {
	shared.Entity
	Username     string `db:"username" json:"username"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
}

// NormalizeEmail trims and case-folds an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// NormalizeUsername trims surrounding whitespace.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}
