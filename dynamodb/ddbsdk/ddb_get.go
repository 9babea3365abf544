package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// GetItemRequest identifies an item to retrieve with optional projection.
type GetItemRequest struct {
	Table      table.TableDefinition
	Key        table.PrimaryKey
	Projection []string // Optional: limits which attributes are returned
	// EventuallyConsistent disables the default strongly consistent read.
	EventuallyConsistent bool
}

// GetItem retrieves a single item. A missing item returns nil, nil.
func (c *Client) GetItem(ctx context.Context, req GetItemRequest) (Item, error) {
	key, err := req.Key.Marshal()
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	in := &dynamodb.GetItemInput{
		TableName:      &req.Table.Name,
		Key:            key,
		ConsistentRead: aws.Bool(!req.EventuallyConsistent),
	}
	if len(req.Projection) > 0 {
		e, err := buildProjection(req.Projection)
		if err != nil {
			return nil, err
		}
		in.ProjectionExpression = e.Projection()
		in.ExpressionAttributeNames = e.Names()
	}

	var out *dynamodb.GetItemOutput
	err = c.call(ctx, "get item", func(ctx context.Context) error {
		out, err = c.awsddb.GetItem(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Item, nil
}

func buildProjection(attrs []string) (expression.Expression, error) {
	proj := expression.NamesList(expression.Name(attrs[0]))
	for _, a := range attrs[1:] {
		proj = proj.AddNames(expression.Name(a))
	}
	e, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("build projection: %w", err)
	}
	return e, nil
}
