package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

// Tag is a user-defined label attached to library tracks.
type Tag struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"-"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Color      string    `json:"color,omitempty"`
	TrackCount int       `json:"track_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t *Tag) Key() string   { return t.ID }
func (t *Tag) Owner() string { return t.OwnerID }

func (t *Tag) Validate() error {
	if t.OwnerID == "" {
		return fmt.Errorf("%w: tag owner is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tag name is required", shared.ErrInvalidInput)
	}
	return nil
}
