package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

// User is a Spotify account. ID is the Spotify user id.
type User struct {
	ID          string    `json:"id"`
	Sequence    int       `json:"-"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u *User) Key() string   { return u.ID }
func (u *User) Owner() string { return u.ID }

func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}
	return nil
}
