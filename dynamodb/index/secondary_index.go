package index

import (
	"fmt"

	"github.com/acksell/larder/dynamodb/index/val"
	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SecondaryIndex represents a Global Secondary Index (GSI) definition with
// key value patterns for deriving GSI key values from an entity.
//
// Example:
//
//	index.SecondaryIndex{
//	    GSI:       schema.GSI1,
//	    Partition: val.Fmt("EMAIL#{email}"),
//	    Sort:      val.Fmt("USER#{id}").Ptr(),
//	}
type SecondaryIndex struct {
	GSI       table.GSIDefinition
	Partition val.ValDef
	Sort      *val.ValDef
}

// Name returns the GSI name.
func (si SecondaryIndex) Name() string {
	return si.GSI.Name
}

// KeyDefinition returns the key definition for this GSI.
func (si SecondaryIndex) KeyDefinition() table.PrimaryKeyDefinition {
	return si.GSI.KeyDefinitions
}

// AttributeNames returns the GSI key attribute names.
func (si SecondaryIndex) AttributeNames() []string {
	names := []string{si.GSI.KeyDefinitions.PartitionKey.Name}
	if si.GSI.KeyDefinitions.SortKey.Name != "" {
		names = append(names, si.GSI.KeyDefinitions.SortKey.Name)
	}
	return names
}

// PartitionValue renders the GSI partition key for a query.
func (si SecondaryIndex) PartitionValue(fields map[string]string) (string, bool) {
	return si.Partition.Render(fields)
}

// Keys renders both GSI key attributes. ok is false if either is sparse.
func (si SecondaryIndex) Keys(fields map[string]string) (map[string]types.AttributeValue, bool) {
	part, ok := si.Partition.Render(fields)
	if !ok {
		return nil, false
	}
	out := map[string]types.AttributeValue{
		si.GSI.KeyDefinitions.PartitionKey.Name: &types.AttributeValueMemberS{Value: part},
	}
	if si.GSI.KeyDefinitions.SortKey.Name == "" {
		return out, true
	}
	if si.Sort == nil {
		return nil, false
	}
	sort, ok := si.Sort.Render(fields)
	if !ok {
		return nil, false
	}
	out[si.GSI.KeyDefinitions.SortKey.Name] = &types.AttributeValueMemberS{Value: sort}
	return out, true
}

// Validate checks that the SecondaryIndex is properly configured.
func (si SecondaryIndex) Validate() error {
	if si.GSI.Name == "" {
		return fmt.Errorf("secondary index GSI name is required")
	}
	if si.GSI.KeyDefinitions.PartitionKey.Name == "" {
		return fmt.Errorf("partition key name is required for GSI %q", si.GSI.Name)
	}
	if si.GSI.KeyDefinitions.PartitionKey.Kind != table.KeyKindS {
		return fmt.Errorf("GSI %q: only string partition keys are derived", si.GSI.Name)
	}
	if !si.Partition.HasValueSource() {
		return fmt.Errorf("partition key value source (Fmt, FromField, or Const) is required for GSI %q", si.GSI.Name)
	}
	if si.GSI.KeyDefinitions.SortKey.Name != "" && (si.Sort == nil || !si.Sort.HasValueSource()) {
		return fmt.Errorf("sort key value source is required for GSI %q", si.GSI.Name)
	}
	return nil
}
