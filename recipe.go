package larder

// Recipe is a user's recipe. Public recipes are listed for everyone.
type Recipe struct {
	ID          string       `dynamodbav:"id" yaml:"id,omitempty" json:"id" validate:"required"`
	AuthorID    string       `dynamodbav:"authorId" yaml:"authorId,omitempty" json:"authorId" validate:"required"`
	Title       string       `dynamodbav:"title" yaml:"title" json:"title" validate:"required,max=200"`
	Description string       `dynamodbav:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty" validate:"max=4000"`
	Category    string       `dynamodbav:"category,omitempty" yaml:"category,omitempty" json:"category,omitempty" validate:"max=60"`
	Servings    int          `dynamodbav:"servings" yaml:"servings" json:"servings" validate:"gte=0,lte=1000"`
	PrepMinutes int          `dynamodbav:"prepMinutes,omitempty" yaml:"prepMinutes,omitempty" json:"prepMinutes,omitempty" validate:"gte=0"`
	CookMinutes int          `dynamodbav:"cookMinutes,omitempty" yaml:"cookMinutes,omitempty" json:"cookMinutes,omitempty" validate:"gte=0"`
	Ingredients []Ingredient `dynamodbav:"ingredients" yaml:"ingredients" json:"ingredients" validate:"dive"`
	Steps       []string     `dynamodbav:"steps,omitempty" yaml:"steps,omitempty" json:"steps,omitempty"`
	Tags        []string     `dynamodbav:"tags,omitempty" yaml:"tags,omitempty" json:"tags,omitempty" validate:"dive,max=40"`
	IsPublic    bool         `dynamodbav:"isPublic" yaml:"isPublic" json:"isPublic"`
	EntityMeta  `yaml:",inline"`
}

// Ingredient is one line of a recipe. Quantity is free text such as
// "1 1/2", "2-3" or "a pinch".
type Ingredient struct {
	Name     string `dynamodbav:"name" yaml:"name" json:"name" validate:"max=100"`
	Quantity string `dynamodbav:"quantity,omitempty" yaml:"quantity,omitempty" json:"quantity,omitempty" validate:"max=40"`
	Unit     string `dynamodbav:"unit,omitempty" yaml:"unit,omitempty" json:"unit,omitempty" validate:"max=40"`
	Notes    string `dynamodbav:"notes,omitempty" yaml:"notes,omitempty" json:"notes,omitempty"`
}

func (r *Recipe) GetID() string { return r.ID }
func (r *Recipe) Owner() string { return r.AuthorID }

func (r *Recipe) IndexFields() map[string]string {
	created := FormatTime(r.CreatedAt)
	fields := map[string]string{
		"id":        r.ID,
		"authorId":  r.AuthorID,
		"createdAt": created,
		"category":  normalize(r.Category),
	}
	if r.IsPublic {
		fields["publishedAt"] = created
	}
	return fields
}
