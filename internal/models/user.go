package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	FullName  string    `bun:"full_name,notnull" json:"full_name"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// UserSyncRequest is the payload the identity provider's webhook pushes
// when a user is created or changes their profile.
type UserSyncRequest struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}
