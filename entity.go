// Package larder holds the entities of the recipe application: recipes with
// their ingredients, users, meal-plan entries and collections.
package larder

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout renders timestamps in index keys. It is fixed width so that
// text order equals time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// DateLayout is the layout of meal-plan dates.
const DateLayout = "2006-01-02"

// Entity is a record stored in the single table.
type Entity interface {
	GetID() string
	GetMeta() EntityMeta
	// Owner is the user allowed to change or delete the entity.
	Owner() string
	// IndexFields returns the values the table and index keys are derived
	// from. It is called before every write.
	IndexFields() map[string]string
}

// EntityMeta is embedded in every entity.
type EntityMeta struct {
	CreatedAt time.Time `dynamodbav:"createdAt" yaml:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" yaml:"updatedAt,omitempty" json:"updatedAt"`
}

func (m EntityMeta) GetMeta() EntityMeta {
	return m
}

// Touch sets UpdatedAt to now, and CreatedAt too if it is unset.
func (m *EntityMeta) Touch(now time.Time) {
	now = now.UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// NewID returns a random entity id.
func NewID() string {
	return uuid.NewString()
}

// FormatTime renders t for use in an index key. The zero time renders empty
// so that keys depending on it are left out.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
