package larder

// MealPlanEntry plans a recipe for a date. Servings is the number of
// servings planned, which may differ from the recipe's own.
type MealPlanEntry struct {
	ID         string `dynamodbav:"id" yaml:"id" json:"id" validate:"required"`
	UserID     string `dynamodbav:"userId" yaml:"userId" json:"userId" validate:"required"`
	RecipeID   string `dynamodbav:"recipeId" yaml:"recipeId" json:"recipeId" validate:"required"`
	Date       string `dynamodbav:"date" yaml:"date" json:"date" validate:"required,datetime=2006-01-02"`
	MealType   string `dynamodbav:"mealType,omitempty" yaml:"mealType,omitempty" json:"mealType,omitempty" validate:"omitempty,oneof=breakfast lunch dinner snack"`
	Servings   int    `dynamodbav:"servings" yaml:"servings" json:"servings" validate:"gte=0,lte=1000"`
	Notes      string `dynamodbav:"notes,omitempty" yaml:"notes,omitempty" json:"notes,omitempty"`
	EntityMeta `yaml:",inline"`
}

func (e *MealPlanEntry) GetID() string { return e.ID }
func (e *MealPlanEntry) Owner() string { return e.UserID }

func (e *MealPlanEntry) IndexFields() map[string]string {
	return map[string]string{
		"id":     e.ID,
		"userId": e.UserID,
		"date":   e.Date,
	}
}
