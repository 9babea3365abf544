package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type Delete struct {
	Table table.TableDefinition
	Key   table.PrimaryKey

	c expression.ConditionBuilder
}

var _ BatchAction = &Delete{}

func NewDelete(def table.TableDefinition, key table.PrimaryKey) *Delete {
	return &Delete{
		Table: def,
		Key:   key,
	}
}

func (d *Delete) TableName() *string {
	return &d.Table.Name
}

func (d *Delete) PrimaryKey() (table.PrimaryKey, error) {
	return d.Key, nil
}

// WithCondition adds a condition expression, ANDed with any existing one.
func (d *Delete) WithCondition(c expression.ConditionBuilder) *Delete {
	if d.c.IsSet() {
		d.c = d.c.And(c)
		return d
	}
	d.c = c
	return d
}

func (d *Delete) ToDeleteItem() (*dynamodb.DeleteItemInput, error) {
	key, err := d.Key.Marshal()
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}
	in := &dynamodb.DeleteItemInput{
		TableName: d.TableName(),
		Key:       key,
	}
	if d.c.IsSet() {
		e, err := expression.NewBuilder().WithCondition(d.c).Build()
		if err != nil {
			return nil, fmt.Errorf("build delete condition: %w", err)
		}
		in.ConditionExpression = e.Condition()
		in.ExpressionAttributeNames = e.Names()
		in.ExpressionAttributeValues = e.Values()
	}
	return in, nil
}

func (d *Delete) ToBatchWriteRequest() (types.WriteRequest, error) {
	if d.c.IsSet() {
		return types.WriteRequest{}, fmt.Errorf("delete with condition cannot be batched")
	}
	key, err := d.Key.Marshal()
	if err != nil {
		return types.WriteRequest{}, fmt.Errorf("delete: %w", err)
	}
	return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}}, nil
}

// DeleteItem deletes d's item. Deleting a missing item is not an error
// unless the condition requires the item to exist.
func (c *Client) DeleteItem(ctx context.Context, d *Delete) error {
	in, err := d.ToDeleteItem()
	if err != nil {
		return err
	}
	return c.call(ctx, "delete item", func(ctx context.Context) error {
		_, err := c.awsddb.DeleteItem(ctx, in)
		return err
	})
}
