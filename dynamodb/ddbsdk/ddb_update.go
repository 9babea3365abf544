package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Update sets and removes attributes of an existing item. It is unchecked:
// callers validate the new state and guard it with a condition.
type Update struct {
	Table table.TableDefinition
	Key   table.PrimaryKey

	u      expression.UpdateBuilder
	fields map[string]bool
	err    error
	c      expression.ConditionBuilder
}

func NewUpdate(def table.TableDefinition, key table.PrimaryKey) *Update {
	return &Update{
		Table:  def,
		Key:    key,
		fields: make(map[string]bool),
	}
}

func (u *Update) TableName() *string {
	return &u.Table.Name
}

func (u *Update) touch(name string) {
	if u.fields[name] && u.err == nil {
		u.err = fmt.Errorf("attribute %q is updated more than once", name)
	}
	u.fields[name] = true
}

// Set assigns a Go value, marshalled with attributevalue, to an attribute.
func (u *Update) Set(name string, v any) *Update {
	u.touch(name)
	u.u = u.u.Set(expression.Name(name), expression.Value(v))
	return u
}

// SetAttribute assigns an already marshalled value to an attribute.
func (u *Update) SetAttribute(name string, av types.AttributeValue) *Update {
	var v any
	if err := attributevalue.Unmarshal(av, &v); err != nil && u.err == nil {
		u.err = fmt.Errorf("attribute %q: %w", name, err)
	}
	return u.Set(name, v)
}

// Remove deletes an attribute from the item.
func (u *Update) Remove(name string) *Update {
	u.touch(name)
	u.u = u.u.Remove(expression.Name(name))
	return u
}

// WithCondition adds a condition expression, ANDed with any existing one.
func (u *Update) WithCondition(c expression.ConditionBuilder) *Update {
	if u.c.IsSet() {
		u.c = u.c.And(c)
		return u
	}
	u.c = c
	return u
}

func (u *Update) ToUpdateItem() (*dynamodb.UpdateItemInput, error) {
	if u.err != nil {
		return nil, fmt.Errorf("update: %w", u.err)
	}
	if len(u.fields) == 0 {
		return nil, fmt.Errorf("update: nothing to update")
	}
	key, err := u.Key.Marshal()
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	b := expression.NewBuilder().WithUpdate(u.u)
	if u.c.IsSet() {
		b = b.WithCondition(u.c)
	}
	e, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return &dynamodb.UpdateItemInput{
		TableName:                 u.TableName(),
		Key:                       key,
		UpdateExpression:          e.Update(),
		ConditionExpression:       e.Condition(),
		ExpressionAttributeNames:  e.Names(),
		ExpressionAttributeValues: e.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	}, nil
}

// UpdateItem applies u and returns the item as it is after the update.
func (c *Client) UpdateItem(ctx context.Context, u *Update) (Item, error) {
	in, err := u.ToUpdateItem()
	if err != nil {
		return nil, err
	}
	var out *dynamodb.UpdateItemOutput
	err = c.call(ctx, "update item", func(ctx context.Context) error {
		out, err = c.awsddb.UpdateItem(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Attributes, nil
}
