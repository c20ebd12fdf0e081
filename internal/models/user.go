package models

import (
	"fmt"
	"time"

	"github.com/myrjola/misterio/internal/random"
)

const userIDLength = 32

// User is an anonymous player identified by the session cookie.
type User struct {
	ID          string    `db:"id"`
	DisplayName string    `db:"display_name"`
	CreatedAt   time.Time `db:"-"`
}

// NewUser creates a user with a random identifier.
func NewUser(now time.Time) (*User, error) {
	id, err := random.Letters(userIDLength)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:          id,
		DisplayName: fmt.Sprintf("Explorador %s", now.Format(time.DateOnly)),
		CreatedAt:   now,
	}, nil
}
