package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/acksell/larder"
	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/repository"
	"github.com/acksell/larder/schema"
	"github.com/acksell/larder/shopping"
)

type fixture struct {
	repos   *repository.Repositories
	planner *Planner
	spans   *tracetest.SpanRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := cache.NewFakeClock(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))
	c := cache.New(cache.WithClock(clock))
	t.Cleanup(c.Close)
	repos := repository.New(ddbsdk.NewMock(schema.Table), schema.Default,
		repository.WithCache(c), repository.WithClock(clock))

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	return &fixture{
		repos:   repos,
		planner: New(repos.MealPlans, repos.Recipes, WithTracer(tp.Tracer("test"))),
		spans:   spans,
	}
}

func (f *fixture) putRecipe(t *testing.T, r *larder.Recipe) {
	t.Helper()
	require.NoError(t, f.repos.Recipes.Put(context.Background(), r.AuthorID, r))
}

func (f *fixture) plan(t *testing.T, id, recipeID, date string, servings int) {
	t.Helper()
	e := &larder.MealPlanEntry{ID: id, UserID: "u1", RecipeID: recipeID, Date: date, Servings: servings}
	require.NoError(t, f.repos.MealPlans.Put(context.Background(), "u1", e))
}

func TestGenerateShoppingList_Rice(t *testing.T) {
	f := newFixture(t)
	f.putRecipe(t, &larder.Recipe{
		ID: "fried-rice", AuthorID: "u1", Title: "Fried rice", Servings: 2,
		Ingredients: []larder.Ingredient{{Name: "rice", Quantity: "1", Unit: "cup"}},
	})
	f.plan(t, "m1", "fried-rice", "2024-05-06", 4)
	f.plan(t, "m2", "fried-rice", "2024-05-09", 2)

	list, err := f.planner.GenerateShoppingList(context.Background(), "u1", "2024-05-06", "2024-05-12")
	require.NoError(t, err)
	assert.Empty(t, list.Skipped)
	require.Len(t, list.Categories, 1)
	require.Len(t, list.Categories[shopping.Pantry], 1)
	rice := list.Categories[shopping.Pantry][0]
	assert.Equal(t, "rice", rice.Name)
	assert.Equal(t, "cup", rice.Unit)
	assert.Equal(t, "3", rice.Quantity.String())
	assert.Equal(t, []string{"Fried rice"}, rice.Sources)
}

func TestGenerateShoppingList_SkipsAndScales(t *testing.T) {
	f := newFixture(t)
	f.putRecipe(t, &larder.Recipe{
		ID: "omelette", AuthorID: "u1", Title: "Omelette", Servings: 1,
		Ingredients: []larder.Ingredient{
			{Name: "eggs", Quantity: "2"},
			{Name: "butter", Quantity: "1", Unit: "tbsp"},
			{Name: "salt", Quantity: "pinch"},
		},
	})
	f.putRecipe(t, &larder.Recipe{ID: "water", AuthorID: "u1", Title: "Water", Servings: 1})
	f.putRecipe(t, &larder.Recipe{
		ID: "mystery", AuthorID: "u1", Title: "Mystery", Servings: 0,
		Ingredients: []larder.Ingredient{{Name: "saffron", Quantity: "1"}},
	})
	f.plan(t, "m1", "omelette", "2024-05-06", 3)
	f.plan(t, "m2", "omelette", "2024-05-07", 0)
	f.plan(t, "m3", "deleted-recipe", "2024-05-07", 2)
	f.plan(t, "m4", "water", "2024-05-08", 2)
	f.plan(t, "m5", "mystery", "2024-05-08", 2)
	f.plan(t, "m6", "omelette", "2024-05-20", 5)

	list, err := f.planner.GenerateShoppingList(context.Background(), "u1", "2024-05-06", "2024-05-12")
	require.NoError(t, err, "orphaned entries do not fail the list")

	assert.ElementsMatch(t, []Skip{
		{EntryID: "m3", RecipeID: "deleted-recipe", Date: "2024-05-07", Reason: SkipRecipeMissing},
		{EntryID: "m4", RecipeID: "water", Date: "2024-05-08", Reason: SkipNoIngredients},
		{EntryID: "m5", RecipeID: "mystery", Date: "2024-05-08", Reason: SkipNoServings},
	}, list.Skipped)

	// m1 scales by 3; m2 has no servings and uses the recipe's own
	require.Len(t, list.Categories[shopping.Proteins], 1)
	assert.Equal(t, "8", list.Categories[shopping.Proteins][0].Quantity.String())
	require.Len(t, list.Categories[shopping.Dairy], 1)
	assert.Equal(t, "4", list.Categories[shopping.Dairy][0].Quantity.String())
	require.Len(t, list.Categories[shopping.Spices], 1)
	assert.Equal(t, "3 pinches + pinch", list.Categories[shopping.Spices][0].Quantity.String())
}

func TestGenerateShoppingList_Empty(t *testing.T) {
	f := newFixture(t)
	list, err := f.planner.GenerateShoppingList(context.Background(), "u1", "2024-05-06", "2024-05-12")
	require.NoError(t, err)
	assert.NotNil(t, list.Categories)
	assert.Empty(t, list.Categories)

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "planner.GenerateShoppingList", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestGenerateShoppingList_BadRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.planner.GenerateShoppingList(context.Background(), "u1", "2024-05-12", "2024-05-06")
	assert.Error(t, err)

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

type stubPlans []*larder.MealPlanEntry

func (s stubPlans) EntriesInRange(context.Context, string, string, string) ([]*larder.MealPlanEntry, error) {
	return s, nil
}

type stubRecipes struct {
	res repository.BatchGetResult[*larder.Recipe]
	err error
	ids []string
}

func (s *stubRecipes) BatchGet(_ context.Context, ids []string) (repository.BatchGetResult[*larder.Recipe], error) {
	s.ids = ids
	return s.res, s.err
}

func TestGenerateShoppingList_StoreFailures(t *testing.T) {
	plans := stubPlans{
		{ID: "m1", UserID: "u1", RecipeID: "r1", Date: "2024-05-06", Servings: 2},
		{ID: "m2", UserID: "u1", RecipeID: "r2", Date: "2024-05-07", Servings: 2},
		{ID: "m3", UserID: "u1", RecipeID: "r1", Date: "2024-05-08", Servings: 2},
	}
	recipe := &larder.Recipe{ID: "r1", Title: "One", Servings: 2, Ingredients: []larder.Ingredient{{Name: "rice", Quantity: "1"}}}

	t.Run("recipe ids are deduplicated", func(t *testing.T) {
		recipes := &stubRecipes{res: repository.BatchGetResult[*larder.Recipe]{Items: []*larder.Recipe{recipe, nil}}}
		list, err := New(plans, recipes).GenerateShoppingList(context.Background(), "u1", "2024-05-06", "2024-05-12")
		require.NoError(t, err)
		assert.Equal(t, []string{"r1", "r2"}, recipes.ids)
		assert.Equal(t, "2", list.Categories[shopping.Pantry][0].Quantity.String())
		assert.Len(t, list.Skipped, 1)
	})

	t.Run("failed reads fail the list", func(t *testing.T) {
		recipes := &stubRecipes{res: repository.BatchGetResult[*larder.Recipe]{
			Items:  []*larder.Recipe{recipe, nil},
			Failed: []repository.FailedID{{ID: "r2", Err: errors.New("throttled")}},
		}}
		_, err := New(plans, recipes).GenerateShoppingList(context.Background(), "u1", "2024-05-06", "2024-05-12")
		assert.ErrorIs(t, err, ErrRecipesUnavailable)
	})

	t.Run("unprocessed reads fail the list", func(t *testing.T) {
		recipes := &stubRecipes{res: repository.BatchGetResult[*larder.Recipe]{
			Items:       []*larder.Recipe{recipe, nil},
			Unprocessed: []string{"r2"},
		}}
		_, err := New(plans, recipes).GenerateShoppingList(context.Background(), "u1", "2024-05-06", "2024-05-12")
		assert.ErrorIs(t, err, ErrRecipesUnavailable)
	})

	t.Run("store error", func(t *testing.T) {
		boom := errors.New("store down")
		_, err := New(plans, &stubRecipes{err: boom}).GenerateShoppingList(context.Background(), "u1", "2024-05-06", "2024-05-12")
		assert.ErrorIs(t, err, boom)
	})
}
