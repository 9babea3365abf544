package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// BatchAction is a write that can be part of a BatchWrite.
type BatchAction interface {
	TableName() *string
	PrimaryKey() (table.PrimaryKey, error)
	ToBatchWriteRequest() (types.WriteRequest, error)
}

// Put writes a whole item, replacing any item with the same key.
type Put struct {
	Table table.TableDefinition
	Item  Item

	c expression.ConditionBuilder
}

var _ BatchAction = &Put{}

func NewPut(def table.TableDefinition, item Item) *Put {
	return &Put{
		Table: def,
		Item:  item,
	}
}

func (p *Put) TableName() *string {
	return &p.Table.Name
}

// PrimaryKey reads the key from the item.
func (p *Put) PrimaryKey() (table.PrimaryKey, error) {
	return p.Table.ExtractPrimaryKey(p.Item)
}

// WithCondition adds a condition expression, ANDed with any existing one.
// A conditional Put cannot be part of a batch.
func (p *Put) WithCondition(c expression.ConditionBuilder) *Put {
	if p.c.IsSet() {
		p.c = p.c.And(c)
		return p
	}
	p.c = c
	return p
}

func (p *Put) ToPutItem() (*dynamodb.PutItemInput, error) {
	if _, err := p.PrimaryKey(); err != nil {
		return nil, fmt.Errorf("put: %w", err)
	}
	in := &dynamodb.PutItemInput{
		TableName: p.TableName(),
		Item:      p.Item,
	}
	if p.c.IsSet() {
		e, err := expression.NewBuilder().WithCondition(p.c).Build()
		if err != nil {
			return nil, fmt.Errorf("build put condition: %w", err)
		}
		in.ConditionExpression = e.Condition()
		in.ExpressionAttributeNames = e.Names()
		in.ExpressionAttributeValues = e.Values()
	}
	return in, nil
}

// ToBatchWriteRequest converts the Put to a WriteRequest for BatchWriteItem.
func (p *Put) ToBatchWriteRequest() (types.WriteRequest, error) {
	if p.c.IsSet() {
		return types.WriteRequest{}, fmt.Errorf("put with condition cannot be batched")
	}
	if _, err := p.PrimaryKey(); err != nil {
		return types.WriteRequest{}, fmt.Errorf("put: %w", err)
	}
	return types.WriteRequest{PutRequest: &types.PutRequest{Item: p.Item}}, nil
}

// PutItem writes p. A failed condition returns ErrConditionFailed.
func (c *Client) PutItem(ctx context.Context, p *Put) error {
	in, err := p.ToPutItem()
	if err != nil {
		return err
	}
	return c.call(ctx, "put item", func(ctx context.Context) error {
		_, err := c.awsddb.PutItem(ctx, in)
		return err
	})
}
