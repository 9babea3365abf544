// Package schema declares the single "larder" table and where each entity
// type lives in it: its primary key and the GSIs that re-project it.
package schema

import (
	"github.com/acksell/larder/dynamodb/index"
	"github.com/acksell/larder/dynamodb/index/val"
	"github.com/acksell/larder/dynamodb/table"
)

// TableName is the default table name; config may override it.
const TableName = "larder"

// Entity types written to the entityType attribute.
const (
	TypeRecipe     = "RECIPE"
	TypeUser       = "USER"
	TypeMealPlan   = "MEALPLAN"
	TypeCollection = "COLLECTION"
)

func gsi(n string) table.GSIDefinition {
	return table.GSIDefinition{
		Name: "GSI" + n,
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: table.KeyDef{Name: "gsi" + n + "pk", Kind: table.KeyKindS},
			SortKey:      table.KeyDef{Name: "gsi" + n + "sk", Kind: table.KeyKindS},
		},
	}
}

var (
	GSI1 = gsi("1")
	GSI2 = gsi("2")
	GSI3 = gsi("3")
)

// Table is the single table holding every entity type.
var Table = NewTable(TableName)

// NewTable returns the table definition under another name.
func NewTable(name string) table.TableDefinition {
	return table.TableDefinition{
		Name: name,
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
			SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
		},
		GSIs: []table.GSIDefinition{GSI1, GSI2, GSI3},
	}
}

// Indexes holds the placement of every entity type in one table.
type Indexes struct {
	Table      table.TableDefinition
	Recipe     index.PrimaryIndex
	User       index.PrimaryIndex
	MealPlan   index.PrimaryIndex
	Collection index.PrimaryIndex
}

// Secondary index patterns, shared by every table name.
var (
	RecipesByAuthor = index.SecondaryIndex{
		GSI:       GSI1,
		Partition: val.Fmt("AUTHOR#{authorId}"),
		Sort:      val.Fmt("RECIPE#{createdAt}#{id}").Ptr(),
	}
	// PublicRecipes only holds recipes with a publishedAt field, which is
	// set while the recipe is public.
	PublicRecipes = index.SecondaryIndex{
		GSI:       GSI2,
		Partition: val.String("PUBLIC#RECIPE"),
		Sort:      val.Fmt("{publishedAt}#{id}").Ptr(),
	}
	RecipesByCategory = index.SecondaryIndex{
		GSI:       GSI3,
		Partition: val.Fmt("CATEGORY#{category}"),
		Sort:      val.Fmt("{createdAt}#{id}").Ptr(),
	}
	UsersByEmail = index.SecondaryIndex{
		GSI:       GSI1,
		Partition: val.Fmt("EMAIL#{email}"),
		Sort:      val.Fmt("USER#{id}").Ptr(),
	}
	MealPlanByDate = index.SecondaryIndex{
		GSI:       GSI1,
		Partition: val.Fmt("USER#{userId}#MEALPLAN"),
		Sort:      val.Fmt("{date}#{id}").Ptr(),
	}
	CollectionsByOwner = index.SecondaryIndex{
		GSI:       GSI1,
		Partition: val.Fmt("USER#{ownerId}#COLLECTION"),
		Sort:      val.Fmt("{createdAt}#{id}").Ptr(),
	}
)

// For returns the entity indexes on the table named name.
func For(name string) Indexes {
	t := NewTable(name)
	return Indexes{
		Table: t,
		Recipe: index.PrimaryIndex{
			Table:        t,
			EntityType:   TypeRecipe,
			PartitionKey: val.Fmt("RECIPE#{id}"),
			SortKey:      val.Fmt("METADATA#{id}").Ptr(),
			Secondary:    []index.SecondaryIndex{RecipesByAuthor, PublicRecipes, RecipesByCategory},
		},
		User: index.PrimaryIndex{
			Table:        t,
			EntityType:   TypeUser,
			PartitionKey: val.Fmt("USER#{id}"),
			SortKey:      val.Fmt("METADATA#{id}").Ptr(),
			Secondary:    []index.SecondaryIndex{UsersByEmail},
		},
		MealPlan: index.PrimaryIndex{
			Table:        t,
			EntityType:   TypeMealPlan,
			PartitionKey: val.Fmt("MEALPLAN#{id}"),
			SortKey:      val.Fmt("METADATA#{id}").Ptr(),
			Secondary:    []index.SecondaryIndex{MealPlanByDate},
		},
		Collection: index.PrimaryIndex{
			Table:        t,
			EntityType:   TypeCollection,
			PartitionKey: val.Fmt("COLLECTION#{id}"),
			SortKey:      val.Fmt("METADATA#{id}").Ptr(),
			Secondary:    []index.SecondaryIndex{CollectionsByOwner},
		},
	}
}

// Default is the set of indexes on the default table.
var Default = For(TableName)

// All returns the entity indexes in a fixed order.
func (ix Indexes) All() []index.PrimaryIndex {
	return []index.PrimaryIndex{ix.Recipe, ix.User, ix.MealPlan, ix.Collection}
}

// Validate checks every entity index against the table.
func (ix Indexes) Validate() error {
	for _, pi := range ix.All() {
		if err := pi.Validate(); err != nil {
			return err
		}
	}
	return nil
}
