// Package repository reads and writes the larder entities. Reads go through
// the cache; every write recomputes the entity's index keys and invalidates
// the cache entries it can affect before it returns.
package repository

import (
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/schema"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNotOwner is returned when the caller may not change the entity.
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrConflict is returned when the entity changed since it was read.
	ErrConflict      = errors.New("entity was modified concurrently")
	ErrInvalidCursor = errors.New("invalid cursor")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects one page of a listing. A zero Limit means DefaultPageSize.
type Page struct {
	Limit  int
	Cursor string
}

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageSize
	case p.Limit > MaxPageSize:
		return MaxPageSize
	}
	return p.Limit
}

func (p Page) cacheKey() string {
	return strconv.Itoa(p.limit()) + "|" + p.Cursor
}

// PageResult is one page of entities. NextCursor is empty on the last page.
type PageResult[P any] struct {
	Items      []P
	NextCursor string
}

// Repositories bundles the repository of every entity type over one table.
type Repositories struct {
	Recipes     *Recipes
	Users       *Users
	MealPlans   *MealPlans
	Collections *Collections
}

type options struct {
	cache *cache.Cache
	clock cache.Clock
	log   *zap.Logger
}

type Option func(*options)

// WithCache serves reads from c. Without it every read hits the store.
func WithCache(c *cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithClock sets the clock stamping createdAt and updatedAt.
func WithClock(c cache.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// New creates the repositories of the entities placed by ix.
func New(db *ddbsdk.Client, ix schema.Indexes, opts ...Option) *Repositories {
	o := options{
		clock: cache.RealClock(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	recipes := newRecipes(db, ix, o)
	return &Repositories{
		Recipes:     recipes,
		Users:       newUsers(db, ix, o),
		MealPlans:   newMealPlans(db, ix, o),
		Collections: newCollections(db, ix, o, recipes),
	}
}
