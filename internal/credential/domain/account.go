package domain

import "time"

// Account roles.
const (
	RoleStudent  = "student"
	RoleEmployer = "employer"
	RoleAdmin    = "admin"
)

// Account is a university-registry record a DID can be bound to. AccountID
// is the institutional identifier (student number), distinct from the row id.
type Account struct {
	ID           string
	AccountID    string
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string // argon2id encoded, may be empty for imported records
	CreatedAt    time.Time
}
