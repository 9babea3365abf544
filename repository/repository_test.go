package repository

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/larder"
	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/dynamodb/table"
	"github.com/acksell/larder/schema"
)

type fixture struct {
	repos *Repositories
	db    *ddbsdk.Client
	clock *cache.FakeClock
	cache *cache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := cache.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c := cache.New(cache.WithClock(clock))
	t.Cleanup(c.Close)
	db := ddbsdk.NewMock(schema.Table)
	return &fixture{
		repos: New(db, schema.Default, WithCache(c), WithClock(clock)),
		db:    db,
		clock: clock,
		cache: c,
	}
}

// recipe stores a new recipe, one second after the previous one.
func (f *fixture) recipe(t *testing.T, author, title, category string, public bool) *larder.Recipe {
	t.Helper()
	f.clock.Advance(time.Second)
	r := &larder.Recipe{
		ID:       larder.NewID(),
		AuthorID: author,
		Title:    title,
		Category: category,
		Servings: 2,
		IsPublic: public,
		Ingredients: []larder.Ingredient{
			{Name: "rice", Quantity: "1", Unit: "cup"},
		},
	}
	require.NoError(t, f.repos.Recipes.Put(context.Background(), author, r))
	return r
}

func titles(recipes []*larder.Recipe) []string {
	out := make([]string, len(recipes))
	for i, r := range recipes {
		out[i] = r.Title
	}
	return out
}

func TestRecipes_PutAndGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.recipe(t, "u1", "Fried rice", "Dinner", true)
	assert.Equal(t, f.clock.Now(), r.CreatedAt)
	assert.Equal(t, r.CreatedAt, r.UpdatedAt)

	got, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.Title, got.Title)
	assert.Equal(t, r.Ingredients, got.Ingredients)
	assert.True(t, got.CreatedAt.Equal(r.CreatedAt))

	missing, err := f.repos.Recipes.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecipes_PutRejectsInvalidAndForeign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.repos.Recipes.Put(ctx, "u2", &larder.Recipe{ID: "r1", AuthorID: "u1", Title: "x"})
	assert.ErrorIs(t, err, ErrNotOwner)

	err = f.repos.Recipes.Put(ctx, "u1", &larder.Recipe{ID: "r1", AuthorID: "u1"})
	var verr *larder.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "Title is required")

	r := f.recipe(t, "u1", "Soup", "", false)
	dup := &larder.Recipe{ID: r.ID, AuthorID: "u1", Title: "Other soup"}
	assert.ErrorIs(t, f.repos.Recipes.Put(ctx, "u1", dup), ErrConflict, "creating an existing id")
	assert.True(t, dup.CreatedAt.IsZero(), "a failed put leaves the entity unchanged")
}

func TestRecipes_OptimisticPut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.recipe(t, "u1", "Soup", "", false)

	a, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	b, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	staleUpdatedAt := b.UpdatedAt

	f.clock.Advance(time.Second)
	a.Title = "Tomato soup"
	require.NoError(t, f.repos.Recipes.Put(ctx, "u1", a))
	assert.Equal(t, f.clock.Now(), a.UpdatedAt)

	b.Title = "Onion soup"
	assert.ErrorIs(t, f.repos.Recipes.Put(ctx, "u1", b), ErrConflict)
	assert.Equal(t, staleUpdatedAt, b.UpdatedAt)

	got, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tomato soup", got.Title)

	// taking over another user's recipe fails on the stored owner
	c, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	c.AuthorID = "u2"
	assert.ErrorIs(t, f.repos.Recipes.Put(ctx, "u2", c), ErrNotOwner)
}

func TestRecipes_UpdateRecomputesIndexes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.recipe(t, "u1", "Curry", "Dinner", true)

	page, err := f.repos.Recipes.ListPublic(ctx, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Curry"}, titles(page.Items))

	f.clock.Advance(time.Second)
	updated, err := f.repos.Recipes.Update(ctx, "u1", r.ID, Changes{"isPublic": false, "category": "Lunch"})
	require.NoError(t, err)
	assert.False(t, updated.IsPublic)
	assert.Equal(t, "Lunch", updated.Category)
	assert.Equal(t, f.clock.Now(), updated.UpdatedAt)

	item, err := f.db.GetItem(ctx, ddbsdk.GetItemRequest{Table: schema.Table, Key: mustKey(t, schema.Default, r.ID)})
	require.NoError(t, err)
	assert.NotContains(t, item, schema.GSI2.KeyDefinitions.PartitionKey.Name, "private recipes leave the public index")
	assert.NotContains(t, item, schema.GSI2.KeyDefinitions.SortKey.Name)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "CATEGORY#lunch"}, item[schema.GSI3.KeyDefinitions.PartitionKey.Name])

	page, err = f.repos.Recipes.ListPublic(ctx, Page{})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "the cached public page was cleared by the update")

	f.clock.Advance(time.Second)
	_, err = f.repos.Recipes.Update(ctx, "u1", r.ID, Changes{"isPublic": true})
	require.NoError(t, err)
	page, err = f.repos.Recipes.ListPublic(ctx, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Curry"}, titles(page.Items))
}

func TestRecipes_UpdateErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.recipe(t, "u1", "Curry", "", false)

	_, err := f.repos.Recipes.Update(ctx, "u2", r.ID, Changes{"title": "Mine"})
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.repos.Recipes.Update(ctx, "u1", "missing", Changes{"title": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	for _, attr := range []string{"id", "authorId", "createdAt", "updatedAt", "pk", "gsi1pk", "entityType"} {
		_, err = f.repos.Recipes.Update(ctx, "u1", r.ID, Changes{attr: "x"})
		assert.Error(t, err, attr)
	}

	_, err = f.repos.Recipes.Update(ctx, "u1", r.ID, Changes{"servings": -1})
	var verr *larder.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.repos.Recipes.Update(ctx, "u1", r.ID, Changes{})
	assert.Error(t, err)
}

func TestRecipes_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.recipe(t, "u1", "Curry", "", true)

	assert.ErrorIs(t, f.repos.Recipes.Delete(ctx, "u2", r.ID), ErrNotOwner)
	require.NoError(t, f.repos.Recipes.Delete(ctx, "u1", r.ID))

	got, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, f.repos.Recipes.Delete(ctx, "u1", r.ID), ErrNotFound)
}

func TestRecipes_GetByIDIsCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.recipe(t, "u1", "Curry", "", true)

	_, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)

	// removed behind the repository's back
	require.NoError(t, f.db.DeleteItem(ctx, ddbsdk.NewDelete(schema.Table, mustKey(t, schema.Default, r.ID))))
	got, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "served from cache within the TTL")

	got.Title = "changed by the caller"
	again, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Curry", again.Title, "callers get copies")

	f.clock.Advance(f.cache.TTL(cache.NSRecipe) + time.Nanosecond)
	got, err = f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func mustKey(t *testing.T, ix schema.Indexes, recipeID string) table.PrimaryKey {
	t.Helper()
	key, err := ix.Recipe.PrimaryKey(map[string]string{"id": recipeID})
	require.NoError(t, err)
	return key
}

func TestRecipes_BatchGetIsPositional(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r1 := f.recipe(t, "u1", "One", "", true)
	r3 := f.recipe(t, "u1", "Three", "", true)

	// r1 is cached, r3 is read from the store
	_, err := f.repos.Recipes.GetByID(ctx, r1.ID)
	require.NoError(t, err)

	res, err := f.repos.Recipes.BatchGet(ctx, []string{r1.ID, "missing", r3.ID, r1.ID})
	require.NoError(t, err)
	assert.True(t, res.Done())
	require.Len(t, res.Items, 4)
	assert.Equal(t, "One", res.Items[0].Title)
	assert.Nil(t, res.Items[1])
	assert.Equal(t, "Three", res.Items[2].Title)
	assert.Equal(t, "One", res.Items[3].Title)
	assert.NotSame(t, res.Items[0], res.Items[3])
	assert.NoError(t, res.Err())
}

func TestRecipes_BatchPutAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var recipes []*larder.Recipe
	var ids []string
	for i := 0; i < 30; i++ {
		r := &larder.Recipe{ID: fmt.Sprintf("r%02d", i), AuthorID: "u1", Title: fmt.Sprintf("Recipe %d", i), IsPublic: true}
		recipes = append(recipes, r)
		ids = append(ids, r.ID)
	}
	res, err := f.repos.Recipes.BatchPut(ctx, recipes)
	require.NoError(t, err)
	assert.True(t, res.Done())
	assert.Len(t, res.Successful, 30)
	assert.False(t, recipes[0].CreatedAt.IsZero())

	got, err := f.repos.Recipes.BatchGet(ctx, ids)
	require.NoError(t, err)
	for i, r := range got.Items {
		require.NotNil(t, r, ids[i])
	}

	del, err := f.repos.Recipes.BatchDelete(ctx, ids[:10])
	require.NoError(t, err)
	assert.Len(t, del.Successful, 10)
	got, err = f.repos.Recipes.BatchGet(ctx, ids)
	require.NoError(t, err)
	assert.Nil(t, got.Items[0])
	assert.NotNil(t, got.Items[10])

	_, err = f.repos.Recipes.BatchPut(ctx, []*larder.Recipe{{ID: "bad", AuthorID: "u1"}})
	var verr *larder.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRecipes_ListByAuthorPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 1; i <= 5; i++ {
		f.recipe(t, "u1", fmt.Sprintf("r%d", i), "", i%2 == 0)
	}
	f.recipe(t, "u2", "other", "", true)

	var seen []string
	page := Page{Limit: 2}
	for i := 0; i < 3; i++ {
		res, err := f.repos.Recipes.ListByAuthor(ctx, "u1", page)
		require.NoError(t, err)
		seen = append(seen, titles(res.Items)...)
		page.Cursor = res.NextCursor
	}
	assert.Equal(t, []string{"r5", "r4", "r3", "r2", "r1"}, seen, "newest first, private included")
	assert.Empty(t, page.Cursor)

	_, err := f.repos.Recipes.ListByAuthor(ctx, "u1", Page{Cursor: "!!"})
	assert.ErrorIs(t, err, ErrInvalidCursor)
	_, err = f.repos.Recipes.ListByAuthor(ctx, "", Page{})
	assert.Error(t, err)
}

func TestRecipes_ListByCategoryAndSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.recipe(t, "u1", "Green curry", "Dinner", true)
	f.recipe(t, "u1", "Secret curry", "dinner", false)
	f.recipe(t, "u2", "Red Curry", " DINNER ", true)
	f.recipe(t, "u2", "Pancakes", "Breakfast", true)

	res, err := f.repos.Recipes.ListByCategory(ctx, "Dinner", Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Red Curry", "Green curry"}, titles(res.Items))

	found, err := f.repos.Recipes.SearchPublic(ctx, "CURRY", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Red Curry", "Green curry"}, titles(found))

	found, err = f.repos.Recipes.SearchPublic(ctx, "curry", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Red Curry"}, titles(found))

	// a new recipe clears cached searches
	f.recipe(t, "u3", "Yellow curry", "Dinner", true)
	found, err = f.repos.Recipes.SearchPublic(ctx, "curry", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Yellow curry", "Red Curry", "Green curry"}, titles(found))

	_, err = f.repos.Recipes.SearchPublic(ctx, "  ", 10)
	assert.Error(t, err)
}

func TestUsers_GetByEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := &larder.User{ID: "u1", Email: "Cook@Example.com", DisplayName: "Cook"}
	require.NoError(t, f.repos.Users.Put(ctx, "u1", u))

	got, err := f.repos.Users.GetByEmail(ctx, " cook@example.COM")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)

	got, err = f.repos.Users.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, f.repos.Users.Put(ctx, "u2", &larder.User{ID: "u1", Email: "x@example.com"}), ErrNotOwner)
}

func TestMealPlans_EntriesInRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	put := func(user, date string) {
		e := &larder.MealPlanEntry{ID: larder.NewID(), UserID: user, RecipeID: "r1", Date: date, Servings: 2}
		require.NoError(t, f.repos.MealPlans.Put(ctx, user, e))
	}
	put("u1", "2024-03-03")
	put("u1", "2024-03-04")
	put("u1", "2024-03-10")
	put("u1", "2024-03-11")
	put("u1", "2024-03-04")
	put("u2", "2024-03-05")

	entries, err := f.repos.MealPlans.EntriesInRange(ctx, "u1", "2024-03-04", "2024-03-10")
	require.NoError(t, err)
	var dates []string
	for _, e := range entries {
		dates = append(dates, e.Date)
	}
	assert.Equal(t, []string{"2024-03-04", "2024-03-04", "2024-03-10"}, dates)

	entries, err = f.repos.MealPlans.EntriesInRange(ctx, "u3", "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = f.repos.MealPlans.EntriesInRange(ctx, "u1", "2024-03-10", "2024-03-04")
	assert.Error(t, err)
	_, err = f.repos.MealPlans.EntriesInRange(ctx, "u1", "March", "2024-03-04")
	assert.Error(t, err)

	err = f.repos.MealPlans.Put(ctx, "u1", &larder.MealPlanEntry{ID: "m", UserID: "u1", RecipeID: "r1", Date: "03/04/2024"})
	var verr *larder.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCollections_Recipes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.recipe(t, "u1", "Mine", "", false)
	public := f.recipe(t, "u2", "Public", "", true)
	private := f.recipe(t, "u2", "Private", "", false)

	col := &larder.Collection{ID: "c1", OwnerID: "u1", Name: "Weeknight", RecipeIDs: []string{}}
	require.NoError(t, f.repos.Collections.Put(ctx, "u1", col))

	list, err := f.repos.Collections.ListByOwner(ctx, "u1", Page{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Empty(t, list.Items[0].RecipeIDs)

	f.clock.Advance(time.Second)
	got, err := f.repos.Collections.AddRecipe(ctx, "u1", "c1", mine.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	got, err = f.repos.Collections.AddRecipe(ctx, "u1", "c1", public.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID, public.ID}, got.RecipeIDs)

	got, err = f.repos.Collections.AddRecipe(ctx, "u1", "c1", public.ID)
	require.NoError(t, err)
	assert.Len(t, got.RecipeIDs, 2, "adding twice changes nothing")

	_, err = f.repos.Collections.AddRecipe(ctx, "u1", "c1", private.ID)
	assert.ErrorIs(t, err, ErrNotFound, "another user's private recipe")
	_, err = f.repos.Collections.AddRecipe(ctx, "u1", "c1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.repos.Collections.AddRecipe(ctx, "u2", "c1", public.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	f.clock.Advance(time.Second)
	got, err = f.repos.Collections.RemoveRecipe(ctx, "u1", "c1", mine.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{public.ID}, got.RecipeIDs)

	list, err = f.repos.Collections.ListByOwner(ctx, "u1", Page{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, []string{public.ID}, list.Items[0].RecipeIDs, "the owner listing was cleared by the change")
}

// second returns repositories on the same table with a cache of their own,
// like another process would have.
func (f *fixture) second(t *testing.T) *Repositories {
	t.Helper()
	c := cache.New(cache.WithClock(f.clock))
	t.Cleanup(c.Close)
	return New(f.db, schema.Default, WithCache(c), WithClock(f.clock))
}

func storedRecipeIDs(t *testing.T, f *fixture, id string) []string {
	t.Helper()
	col, err := f.repos.Collections.load(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, col)
	return col.RecipeIDs
}

func TestCollections_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := f.second(t)
	a := f.recipe(t, "u1", "A", "", true)
	b := f.recipe(t, "u1", "B", "", true)
	require.NoError(t, f.repos.Collections.Put(ctx, "u1", &larder.Collection{ID: "c1", OwnerID: "u1", Name: "Mix", RecipeIDs: []string{}}))

	cached, err := f.repos.Collections.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, cached.RecipeIDs)

	f.clock.Advance(time.Second)
	_, err = other.Collections.AddRecipe(ctx, "u1", "c1", a.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	got, err := f.repos.Collections.AddRecipe(ctx, "u1", "c1", b.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, got.RecipeIDs)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, storedRecipeIDs(t, f, "c1"))

	f.clock.Advance(time.Second)
	_, err = other.Collections.RemoveRecipe(ctx, "u1", "c1", a.ID)
	require.NoError(t, err)
	got, err = f.repos.Collections.AddRecipe(ctx, "u1", "c1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.RecipeIDs, "a removal elsewhere is seen before adding")
}

func TestCollections_ModifyRereadsAfterConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := f.second(t)
	a := f.recipe(t, "u1", "A", "", true)
	require.NoError(t, f.repos.Collections.Put(ctx, "u1", &larder.Collection{ID: "c1", OwnerID: "u1", Name: "Mix", RecipeIDs: []string{}}))

	calls := 0
	got, err := f.repos.Collections.modify(ctx, "u1", "c1", func(col *larder.Collection) (Changes, bool) {
		calls++
		if calls == 1 {
			// another writer gets in between the read and the write
			f.clock.Advance(time.Second)
			_, err := other.Collections.AddRecipe(ctx, "u1", "c1", a.ID)
			require.NoError(t, err)
		}
		f.clock.Advance(time.Second)
		return Changes{"recipeIds": append(slices.Clone(col.RecipeIDs), "r-new")}, true
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{a.ID, "r-new"}, got.RecipeIDs)
	assert.Equal(t, []string{a.ID, "r-new"}, storedRecipeIDs(t, f, "c1"))
}

func TestUpdateFrom_StaleReadConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.recipe(t, "u1", "Soup", "", false)

	stale, err := f.repos.Recipes.load(ctx, r.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.repos.Recipes.Update(ctx, "u1", r.ID, Changes{"title": "Stew"})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.repos.Recipes.updateFrom(ctx, "u1", stale, Changes{"servings": 4})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := f.repos.Recipes.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stew", got.Title)
	assert.Equal(t, 2, got.Servings)
}

func TestPage_Limit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Page{}.limit())
	assert.Equal(t, DefaultPageSize, Page{Limit: -3}.limit())
	assert.Equal(t, 7, Page{Limit: 7}.limit())
	assert.Equal(t, MaxPageSize, Page{Limit: 1000}.limit())
}
