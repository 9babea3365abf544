package ddbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// DeleteItem deletes an item by primary key. Deleting a missing item
// succeeds unless a condition expression requires the item to exist.
func (s *Store) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	tabl, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := tabl.tableKey(params.Key)
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	cond, err := condition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var old map[string]types.AttributeValue
	err = s.update(ctx, func(txn *badger.Txn) error {
		old, err = readItem(txn, key)
		if err != nil {
			return err
		}
		if !cond.Eval(old) {
			return conditionFailed()
		}
		if old == nil {
			return nil
		}
		return tabl.removeItem(txn, old)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = old
	}
	return out, nil
}
