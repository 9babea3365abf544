// Package planner turns a user's meal plan into a shopping list.
package planner

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acksell/larder"
	"github.com/acksell/larder/repository"
	"github.com/acksell/larder/shopping"
)

const tracerName = "github.com/acksell/larder/planner"

// ErrRecipesUnavailable is returned when some planned recipes could not be
// read from the store. A list missing them would look complete but not be.
var ErrRecipesUnavailable = errors.New("planned recipes could not be read")

// Reasons a meal-plan entry is left out of the list.
const (
	SkipRecipeMissing = "recipe not found"
	SkipNoIngredients = "recipe has no ingredients"
	SkipNoServings    = "recipe has no servings"
)

// MealPlans lists the meal-plan entries of a user in a date range.
type MealPlans interface {
	EntriesInRange(ctx context.Context, userID, start, end string) ([]*larder.MealPlanEntry, error)
}

// Recipes reads recipes by id, one result slot per id.
type Recipes interface {
	BatchGet(ctx context.Context, ids []string) (repository.BatchGetResult[*larder.Recipe], error)
}

// Skip is a meal-plan entry that did not contribute to the list.
type Skip struct {
	EntryID  string `json:"entryId" yaml:"entryId"`
	RecipeID string `json:"recipeId" yaml:"recipeId"`
	Date     string `json:"date" yaml:"date"`
	Reason   string `json:"reason" yaml:"reason"`
}

// ShoppingList is the categorized list for a date range. Categories is
// never nil; it is empty when nothing is planned.
type ShoppingList struct {
	UserID     string                     `json:"userId" yaml:"userId"`
	Start      string                     `json:"start" yaml:"start"`
	End        string                     `json:"end" yaml:"end"`
	Categories map[string][]shopping.Item `json:"categories" yaml:"categories"`
	Skipped    []Skip                     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

type Planner struct {
	plans   MealPlans
	recipes Recipes
	log     *zap.Logger
	tracer  trace.Tracer
}

type Option func(*Planner)

func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) {
		p.log = l
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Planner) {
		p.tracer = t
	}
}

func New(plans MealPlans, recipes Recipes, opts ...Option) *Planner {
	p := &Planner{
		plans:   plans,
		recipes: recipes,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// GenerateShoppingList aggregates the ingredients of every recipe planned
// by userID from start to end inclusive (dates as larder.DateLayout).
//
// Each recipe is scaled by the entry's servings over the recipe's own; an
// entry without servings uses the recipe's. Entries whose recipe is
// missing, has no ingredients or no servings are skipped and reported.
// Store failures fail the whole call.
func (p *Planner) GenerateShoppingList(ctx context.Context, userID, start, end string) (list ShoppingList, err error) {
	ctx, span := p.tracer.Start(ctx, "planner.GenerateShoppingList", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("range.start", start),
		attribute.String("range.end", end),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "shopping list failed")
		}
		span.End()
	}()
	log := p.log.With(zap.String("user", userID), zap.String("start", start), zap.String("end", end))

	entries, err := p.plans.EntriesInRange(ctx, userID, start, end)
	if err != nil {
		return ShoppingList{}, fmt.Errorf("load meal plan: %w", err)
	}
	list = ShoppingList{
		UserID:     userID,
		Start:      start,
		End:        end,
		Categories: make(map[string][]shopping.Item),
	}
	span.SetAttributes(attribute.Int("mealplan.entries", len(entries)))
	if len(entries) == 0 {
		return list, nil
	}

	var ids []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if !seen[e.RecipeID] {
			seen[e.RecipeID] = true
			ids = append(ids, e.RecipeID)
		}
	}
	res, err := p.recipes.BatchGet(ctx, ids)
	if err != nil {
		return ShoppingList{}, fmt.Errorf("load recipes: %w", err)
	}
	if !res.Done() {
		log.Error("planned recipes not read",
			zap.Strings("unprocessed", res.Unprocessed),
			zap.Error(res.Err()))
		return ShoppingList{}, fmt.Errorf("%w: %d unprocessed, %d failed",
			ErrRecipesUnavailable, len(res.Unprocessed), len(res.Failed))
	}
	recipes := make(map[string]*larder.Recipe, len(ids))
	for i, id := range ids {
		if r := res.Items[i]; r != nil {
			recipes[id] = r
		}
	}

	var agg shopping.Aggregator
	for _, e := range entries {
		r := recipes[e.RecipeID]
		reason := ""
		switch {
		case r == nil:
			reason = SkipRecipeMissing
		case len(r.Ingredients) == 0:
			reason = SkipNoIngredients
		case r.Servings <= 0:
			reason = SkipNoServings
		}
		if reason != "" {
			log.Warn("meal plan entry skipped",
				zap.String("entry", e.ID),
				zap.String("recipe", e.RecipeID),
				zap.String("reason", reason))
			list.Skipped = append(list.Skipped, Skip{EntryID: e.ID, RecipeID: e.RecipeID, Date: e.Date, Reason: reason})
			continue
		}
		servings := e.Servings
		if servings <= 0 {
			servings = r.Servings
		}
		agg.Add(r.Ingredients, float64(servings)/float64(r.Servings), r.Title)
	}
	list.Categories = agg.List()

	span.SetAttributes(
		attribute.Int("recipes", len(recipes)),
		attribute.Int("items", agg.Len()),
		attribute.Int("skipped", len(list.Skipped)),
	)
	log.Debug("shopping list generated", zap.Int("items", agg.Len()), zap.Int("skipped", len(list.Skipped)))
	return list, nil
}
