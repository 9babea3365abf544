package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/acksell/larder"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/schema"
)

// MealPlans is not cached: plans are read once per shopping list.
type MealPlans struct {
	*entityStore[larder.MealPlanEntry, *larder.MealPlanEntry]
}

func newMealPlans(db *ddbsdk.Client, ix schema.Indexes, o options) *MealPlans {
	return &MealPlans{newEntityStore[larder.MealPlanEntry, *larder.MealPlanEntry](db, ix.MealPlan, "userId", "", o)}
}

// EntriesInRange returns a user's entries dated from start to end
// inclusive, both formatted as larder.DateLayout, in date order.
func (m *MealPlans) EntriesInRange(ctx context.Context, userID, start, end string) ([]*larder.MealPlanEntry, error) {
	from, err := time.Parse(larder.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("meal plan range start: %w", err)
	}
	to, err := time.Parse(larder.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("meal plan range end: %w", err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("meal plan range: end %s is before start %s", end, start)
	}
	key, ok := schema.MealPlanByDate.PartitionValue(map[string]string{"userId": userID})
	if !ok {
		return nil, fmt.Errorf("meal plan range: user id is required")
	}
	// Sort keys are "<date>#<id>"; the upper bound sorts after every id.
	return m.queryAll(ctx, schema.MealPlanByDate.Name(), key,
		SortKey(ddbsdk.Between(start, end+"#\uffff")))
}
