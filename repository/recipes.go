package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"github.com/acksell/larder"
	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/schema"
)

// searchScanLimit bounds how many public recipes one search reads.
const searchScanLimit = 1000

type Recipes struct {
	*entityStore[larder.Recipe, *larder.Recipe]
}

func newRecipes(db *ddbsdk.Client, ix schema.Indexes, o options) *Recipes {
	s := newEntityStore[larder.Recipe, *larder.Recipe](db, ix.Recipe, "authorId", cache.NSRecipe, o)
	// Any recipe write may change every listing, so none is kept.
	s.afterWrite = func() {
		if s.cache == nil {
			return
		}
		for _, ns := range []string{cache.NSRecipesPublic, cache.NSRecipesByAuthor, cache.NSRecipesByCategory, cache.NSSearch} {
			s.cache.Clear(ns)
		}
	}
	return &Recipes{s}
}

// ListByAuthor returns an author's recipes, public and private, newest first.
func (r *Recipes) ListByAuthor(ctx context.Context, authorID string, page Page) (PageResult[*larder.Recipe], error) {
	key, ok := schema.RecipesByAuthor.PartitionValue(map[string]string{"authorId": authorID})
	if !ok {
		return PageResult[*larder.Recipe]{}, fmt.Errorf("list recipes by author: author id is required")
	}
	return r.cachedPage(ctx, cache.NSRecipesByAuthor, authorID+"|"+page.cacheKey(), func(ctx context.Context) (PageResult[*larder.Recipe], error) {
		return r.Query(ctx, schema.RecipesByAuthor.Name(), key, page, Descending())
	})
}

// ListPublic returns public recipes, most recently published first.
func (r *Recipes) ListPublic(ctx context.Context, page Page) (PageResult[*larder.Recipe], error) {
	key, _ := schema.PublicRecipes.PartitionValue(nil)
	return r.cachedPage(ctx, cache.NSRecipesPublic, page.cacheKey(), func(ctx context.Context) (PageResult[*larder.Recipe], error) {
		return r.Query(ctx, schema.PublicRecipes.Name(), key, page, Descending())
	})
}

// ListByCategory returns the public recipes of a category, newest first.
// The category is matched case-insensitively.
func (r *Recipes) ListByCategory(ctx context.Context, category string, page Page) (PageResult[*larder.Recipe], error) {
	category = strings.ToLower(strings.TrimSpace(category))
	key, ok := schema.RecipesByCategory.PartitionValue(map[string]string{"category": category})
	if !ok {
		return PageResult[*larder.Recipe]{}, fmt.Errorf("list recipes by category: category is required")
	}
	public := expression.Name("isPublic").Equal(expression.Value(true))
	return r.cachedPage(ctx, cache.NSRecipesByCategory, category+"|"+page.cacheKey(), func(ctx context.Context) (PageResult[*larder.Recipe], error) {
		return r.Query(ctx, schema.RecipesByCategory.Name(), key, page, Descending(), Filter(public))
	})
}

// SearchPublic returns up to limit public recipes whose title contains
// term, ignoring case, newest first. Results are not ranked.
func (r *Recipes) SearchPublic(ctx context.Context, term string, limit int) ([]*larder.Recipe, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, fmt.Errorf("search recipes: empty search term")
	}
	limit = Page{Limit: limit}.limit()
	search := func(ctx context.Context) ([]*larder.Recipe, error) {
		key, _ := schema.PublicRecipes.PartitionValue(nil)
		q, err := r.newQuery(schema.PublicRecipes.Name(), key, MaxPageSize, []QueryOption{Descending()})
		if err != nil {
			return nil, err
		}
		var out []*larder.Recipe
		for scanned := 0; scanned < searchScanLimit; {
			res, err := q.Next(ctx)
			if err != nil {
				return nil, fmt.Errorf("search recipes: %w", err)
			}
			recipes, err := r.decodeAll(res.Items)
			if err != nil {
				return nil, err
			}
			scanned += len(recipes)
			for _, rec := range recipes {
				if strings.Contains(strings.ToLower(rec.Title), term) {
					out = append(out, rec)
					if len(out) == limit {
						return out, nil
					}
				}
			}
			if res.IsDone {
				break
			}
		}
		return out, nil
	}
	if r.cache == nil {
		return search(ctx)
	}
	found, err := cache.GetOrSet(ctx, r.cache, cache.NSSearch, term+"|"+strconv.Itoa(limit), search)
	if err != nil {
		return nil, err
	}
	out := make([]*larder.Recipe, len(found))
	for i, rec := range found {
		out[i] = clone(rec)
	}
	return out, nil
}
