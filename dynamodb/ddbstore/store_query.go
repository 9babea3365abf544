package ddbstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/acksell/larder/dynamodb/ddbstore/expr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// Query retrieves items in one partition of the table or of a GSI.
//
// Limit caps the number of items evaluated before the filter expression is
// applied, as in DynamoDB, so a page may hold fewer items than Limit while
// LastEvaluatedKey is still set.
func (s *Store) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	if params.KeyConditionExpression == nil {
		return nil, fmt.Errorf("key condition expression is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabl, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	enc, err := tabl.encoder(params.IndexName)
	if err != nil {
		return nil, err
	}

	in := expr.Input{Names: params.ExpressionAttributeNames, Values: params.ExpressionAttributeValues}
	keyCond, err := expr.ParseKeyCondition(*params.KeyConditionExpression, in, enc.keys.PartitionKey.Name, enc.keys.SortKey.Name)
	if err != nil {
		return nil, err
	}
	pk, ok := keyCond.Partition.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("partition key %s must be compared with a string", enc.keys.PartitionKey.Name)
	}
	filter, err := condition(params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	paths, err := projection(params.ProjectionExpression, params.ExpressionAttributeNames)
	if err != nil {
		return nil, err
	}

	var startKey []byte
	if params.ExclusiveStartKey != nil {
		var ok bool
		startKey, ok, err = enc.encode(params.ExclusiveStartKey)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusive start key: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("invalid exclusive start key: missing key attributes")
		}
	}

	limit := 0
	if params.Limit != nil {
		limit = int(*params.Limit)
	}
	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	prefix := enc.partitionPrefix(pk.Value)

	out := &dynamodb.QueryOutput{}
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = !forward
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		switch {
		case startKey != nil:
			it.Seek(startKey)
			if it.Valid() && bytes.Equal(it.Item().Key(), startKey) {
				it.Next()
			}
		case forward:
			it.Seek(prefix)
		default:
			it.Seek(incrementBytes(prefix))
		}

		var last map[string]types.AttributeValue
		for ; it.Valid(); it.Next() {
			if limit > 0 && int(out.ScannedCount) == limit {
				out.LastEvaluatedKey = enc.keyAttributes(last)
				break
			}
			var item map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = decodeItem(val)
				return err
			}); err != nil {
				return err
			}
			if !keyCond.MatchSort(item) {
				continue
			}
			out.ScannedCount++
			last = item
			if !filter.Eval(item) {
				continue
			}
			out.Count++
			if params.Select != types.SelectCount {
				out.Items = append(out.Items, expr.Project(item, paths))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return out, nil
}
