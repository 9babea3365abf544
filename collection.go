package larder

import "slices"

// Collection is a named set of recipes owned by a user.
type Collection struct {
	ID          string   `dynamodbav:"id" yaml:"id" json:"id" validate:"required"`
	OwnerID     string   `dynamodbav:"ownerId" yaml:"ownerId" json:"ownerId" validate:"required"`
	Name        string   `dynamodbav:"name" yaml:"name" json:"name" validate:"required,max=100"`
	Description string   `dynamodbav:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty" validate:"max=1000"`
	RecipeIDs   []string `dynamodbav:"recipeIds" yaml:"recipeIds" json:"recipeIds" validate:"dive,required"`
	IsPublic    bool     `dynamodbav:"isPublic" yaml:"isPublic" json:"isPublic"`
	EntityMeta  `yaml:",inline"`
}

func (c *Collection) GetID() string { return c.ID }
func (c *Collection) Owner() string { return c.OwnerID }

func (c *Collection) IndexFields() map[string]string {
	return map[string]string{
		"id":        c.ID,
		"ownerId":   c.OwnerID,
		"createdAt": FormatTime(c.CreatedAt),
	}
}

// AddRecipe adds id unless it is already in the collection. It reports
// whether the collection changed.
func (c *Collection) AddRecipe(id string) bool {
	if slices.Contains(c.RecipeIDs, id) {
		return false
	}
	c.RecipeIDs = append(c.RecipeIDs, id)
	return true
}

// RemoveRecipe removes id and reports whether the collection changed.
func (c *Collection) RemoveRecipe(id string) bool {
	i := slices.Index(c.RecipeIDs, id)
	if i < 0 {
		return false
	}
	c.RecipeIDs = slices.Delete(c.RecipeIDs, i, i+1)
	return true
}
