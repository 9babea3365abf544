package shopping

import "strings"

// Shopping categories, in display order.
const (
	Produce  = "Produce"
	Dairy    = "Dairy & Alternatives"
	Proteins = "Proteins"
	Pantry   = "Pantry"
	Spices   = "Spices"
	Other    = "Other"
)

// Categories lists every category in display order.
var Categories = []string{Produce, Dairy, Proteins, Pantry, Spices, Other}

type keyword struct {
	word     string
	category string
}

// keywords is matched in order against the lowercased item name; the
// first keyword contained in the name wins. Longer phrases come before
// the words they contain.
var keywords = []keyword{
	{"garlic powder", Spices},
	{"onion powder", Spices},
	{"chili powder", Spices},
	{"black pepper", Spices},
	{"bay lea", Spices},
	{"coconut milk", Dairy},
	{"almond milk", Dairy},
	{"oat milk", Dairy},
	{"soy milk", Dairy},
	{"peanut butter", Pantry},
	{"peanut", Pantry},
	{"stock", Pantry},
	{"broth", Pantry},
	{"bell pepper", Produce},
	{"green bean", Produce},
	{"chickpea", Proteins},
	{"nutmeg", Spices},
	{"cornstarch", Pantry},
	{"eggplant", Produce},
	{"sweet potato", Produce},

	{"lettuce", Produce},
	{"spinach", Produce},
	{"kale", Produce},
	{"tomato", Produce},
	{"onion", Produce},
	{"shallot", Produce},
	{"garlic", Produce},
	{"ginger", Produce},
	{"carrot", Produce},
	{"celery", Produce},
	{"potato", Produce},
	{"cucumber", Produce},
	{"zucchini", Produce},
	{"broccoli", Produce},
	{"cauliflower", Produce},
	{"cabbage", Produce},
	{"mushroom", Produce},
	{"avocado", Produce},
	{"lemon", Produce},
	{"lime", Produce},
	{"apple", Produce},
	{"banana", Produce},
	{"berr", Produce},
	{"orange", Produce},
	{"parsley", Produce},
	{"cilantro", Produce},
	{"basil", Produce},
	{"mint", Produce},
	{"scallion", Produce},
	{"leek", Produce},
	{"squash", Produce},
	{"corn", Produce},
	{"pea", Produce},

	{"milk", Dairy},
	{"cream", Dairy},
	{"butter", Dairy},
	{"cheese", Dairy},
	{"parmesan", Dairy},
	{"mozzarella", Dairy},
	{"yogurt", Dairy},
	{"yoghurt", Dairy},
	{"tofu", Dairy},

	{"chicken", Proteins},
	{"beef", Proteins},
	{"pork", Proteins},
	{"bacon", Proteins},
	{"sausage", Proteins},
	{"lamb", Proteins},
	{"turkey", Proteins},
	{"fish", Proteins},
	{"salmon", Proteins},
	{"tuna", Proteins},
	{"shrimp", Proteins},
	{"prawn", Proteins},
	{"egg", Proteins},
	{"bean", Proteins},
	{"lentil", Proteins},

	{"rice", Pantry},
	{"flour", Pantry},
	{"pasta", Pantry},
	{"noodle", Pantry},
	{"bread", Pantry},
	{"oat", Pantry},
	{"sugar", Pantry},
	{"honey", Pantry},
	{"oil", Pantry},
	{"vinegar", Pantry},
	{"sauce", Pantry},
	{"baking", Pantry},
	{"yeast", Pantry},
	{"quinoa", Pantry},
	{"couscous", Pantry},
	{"nut", Pantry},

	{"salt", Spices},
	{"pepper", Spices},
	{"cumin", Spices},
	{"paprika", Spices},
	{"oregano", Spices},
	{"thyme", Spices},
	{"rosemary", Spices},
	{"cinnamon", Spices},
	{"turmeric", Spices},
	{"curry", Spices},
	{"clove", Spices},
	{"vanilla", Spices},
	{"chili", Spices},
}

// Categorize returns the category of an item name, or Other.
func Categorize(name string) string {
	n := strings.ToLower(name)
	for _, k := range keywords {
		if strings.Contains(n, k.word) {
			return k.category
		}
	}
	return Other
}
