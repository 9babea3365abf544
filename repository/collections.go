package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/acksell/larder"
	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/schema"
)

type Collections struct {
	*entityStore[larder.Collection, *larder.Collection]
	recipes *Recipes
}

func newCollections(db *ddbsdk.Client, ix schema.Indexes, o options, recipes *Recipes) *Collections {
	s := newEntityStore[larder.Collection, *larder.Collection](db, ix.Collection, "ownerId", cache.NSCollection, o)
	s.afterWrite = func() {
		if s.cache != nil {
			s.cache.Clear(cache.NSCollectionsOwner)
		}
	}
	return &Collections{entityStore: s, recipes: recipes}
}

// ListByOwner returns a user's collections, newest first.
func (c *Collections) ListByOwner(ctx context.Context, ownerID string, page Page) (PageResult[*larder.Collection], error) {
	key, ok := schema.CollectionsByOwner.PartitionValue(map[string]string{"ownerId": ownerID})
	if !ok {
		return PageResult[*larder.Collection]{}, fmt.Errorf("list collections: owner id is required")
	}
	return c.cachedPage(ctx, cache.NSCollectionsOwner, ownerID+"|"+page.cacheKey(), func(ctx context.Context) (PageResult[*larder.Collection], error) {
		return c.Query(ctx, schema.CollectionsByOwner.Name(), key, page, Descending())
	})
}

// AddRecipe adds a recipe to a collection of callerID. The recipe must
// exist and be public or written by callerID. Adding a recipe already in
// the collection changes nothing.
func (c *Collections) AddRecipe(ctx context.Context, callerID, collectionID, recipeID string) (*larder.Collection, error) {
	rec, err := c.recipes.GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if rec == nil || (!rec.IsPublic && rec.AuthorID != callerID) {
		return nil, fmt.Errorf("recipe %s: %w", recipeID, ErrNotFound)
	}
	return c.changeRecipes(ctx, callerID, collectionID, func(col *larder.Collection) bool {
		return col.AddRecipe(recipeID)
	})
}

// RemoveRecipe removes a recipe from a collection of callerID.
func (c *Collections) RemoveRecipe(ctx context.Context, callerID, collectionID, recipeID string) (*larder.Collection, error) {
	return c.changeRecipes(ctx, callerID, collectionID, func(col *larder.Collection) bool {
		return col.RemoveRecipe(recipeID)
	})
}

// changeRecipes reads the collection from the store rather than the cache
// and writes the changed recipe ids guarded on that read, so that a
// concurrent change of the collection is never overwritten.
func (c *Collections) changeRecipes(ctx context.Context, callerID, collectionID string, change func(*larder.Collection) bool) (*larder.Collection, error) {
	return c.modify(ctx, callerID, collectionID, func(col *larder.Collection) (Changes, bool) {
		col.RecipeIDs = slices.Clone(col.RecipeIDs)
		if !change(col) {
			return nil, false
		}
		recipeIDs := col.RecipeIDs
		if recipeIDs == nil {
			recipeIDs = []string{}
		}
		return Changes{"recipeIds": recipeIDs}, true
	})
}
