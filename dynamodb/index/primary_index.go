package index

import (
	"fmt"

	"github.com/acksell/larder/dynamodb/index/val"
	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// EntityTypeAttr is written on every item so heterogeneous records in the
// single table can be told apart.
const EntityTypeAttr = "entityType"

// PrimaryIndex represents one entity type's placement in the table: how its
// primary key is built and which GSIs re-project it.
//
// Example:
//
//	var Recipes = index.PrimaryIndex{
//	    Table:        schema.Table,
//	    EntityType:   "RECIPE",
//	    PartitionKey: val.Fmt("RECIPE#{id}"),
//	    SortKey:      val.Fmt("METADATA#{id}").Ptr(),
//	    Secondary:    []index.SecondaryIndex{RecipesByAuthor},
//	}
type PrimaryIndex struct {
	Table        table.TableDefinition
	EntityType   string
	PartitionKey val.ValDef
	// SortKey is required when the table has a sort key.
	SortKey   *val.ValDef
	Secondary []SecondaryIndex
}

// TableName returns the table name.
func (pi PrimaryIndex) TableName() string {
	return pi.Table.Name
}

// PrimaryKey derives the primary key from the entity's index fields.
func (pi PrimaryIndex) PrimaryKey(fields map[string]string) (table.PrimaryKey, error) {
	part, ok := pi.PartitionKey.Render(fields)
	if !ok {
		return table.PrimaryKey{}, fmt.Errorf("%s: partition key %s: missing field", pi.EntityType, pi.Table.KeyDefinitions.PartitionKey.Name)
	}
	pk := table.PrimaryKey{
		Definition: pi.Table.KeyDefinitions,
		Values:     table.PrimaryKeyValues{PartitionKey: part},
	}
	if pi.Table.KeyDefinitions.SortKey.Name == "" {
		return pk, nil
	}
	if pi.SortKey == nil {
		return table.PrimaryKey{}, fmt.Errorf("%s: table %s requires a sort key", pi.EntityType, pi.Table.Name)
	}
	sort, ok := pi.SortKey.Render(fields)
	if !ok {
		return table.PrimaryKey{}, fmt.Errorf("%s: sort key %s: missing field", pi.EntityType, pi.Table.KeyDefinitions.SortKey.Name)
	}
	pk.Values.SortKey = sort
	return pk, nil
}

// Item marshals entity and adds the primary key, the entity type and every
// GSI key pair whose source fields are present.
func (pi PrimaryIndex) Item(entity any, fields map[string]string) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(entity)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", pi.EntityType, err)
	}
	pk, err := pi.PrimaryKey(fields)
	if err != nil {
		return nil, err
	}
	keyAttrs, err := pk.Marshal()
	if err != nil {
		return nil, err
	}
	for k, v := range keyAttrs {
		item[k] = v
	}
	item[EntityTypeAttr] = &types.AttributeValueMemberS{Value: pi.EntityType}

	set, remove := pi.IndexAttributes(fields)
	for k, v := range set {
		item[k] = v
	}
	for _, k := range remove {
		delete(item, k)
	}
	return item, nil
}

// IndexAttributes derives the GSI key attributes for fields. Attributes of
// sparse indexes whose source fields are empty are returned in remove, so an
// update can drop a stale index entry in the same write.
func (pi PrimaryIndex) IndexAttributes(fields map[string]string) (set map[string]types.AttributeValue, remove []string) {
	set = make(map[string]types.AttributeValue)
	for _, gsi := range pi.Secondary {
		attrs, ok := gsi.Keys(fields)
		if !ok {
			remove = append(remove, gsi.AttributeNames()...)
			continue
		}
		for k, v := range attrs {
			set[k] = v
		}
	}
	return set, remove
}

// Index returns the secondary index with the given GSI name.
func (pi PrimaryIndex) Index(gsiName string) (SecondaryIndex, bool) {
	for _, si := range pi.Secondary {
		if si.Name() == gsiName {
			return si, true
		}
	}
	return SecondaryIndex{}, false
}

// Validate checks that the PrimaryIndex is properly configured.
func (pi PrimaryIndex) Validate() error {
	if pi.Table.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if pi.EntityType == "" {
		return fmt.Errorf("entity type is required")
	}
	if !pi.PartitionKey.HasValueSource() {
		return fmt.Errorf("partition key value source is required")
	}
	if pi.Table.KeyDefinitions.SortKey.Name != "" && (pi.SortKey == nil || !pi.SortKey.HasValueSource()) {
		return fmt.Errorf("sort key value source is required for table %q", pi.Table.Name)
	}
	for _, gsi := range pi.Secondary {
		if err := gsi.Validate(); err != nil {
			return fmt.Errorf("GSI %q: %w", gsi.Name(), err)
		}
		if _, ok := pi.Table.GSI(gsi.Name()); !ok {
			return fmt.Errorf("GSI %q is not defined on table %q", gsi.Name(), pi.Table.Name)
		}
	}
	return nil
}
