package ddbstore

import (
	"context"
	"fmt"

	"github.com/acksell/larder/dynamodb/ddbstore/expr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// MaxBatchGetKeys is DynamoDB's limit on keys per BatchGetItem request.
const MaxBatchGetKeys = 100

// BatchGetItem retrieves up to 100 items across tables. Missing items are
// left out of the response. Keys rejected by the store's ThrottleFunc are
// returned in UnprocessedKeys.
func (s *Store) BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	if params == nil || len(params.RequestItems) == 0 {
		return nil, fmt.Errorf("request items are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := 0
	for _, ka := range params.RequestItems {
		total += len(ka.Keys)
	}
	if total > MaxBatchGetKeys {
		return nil, fmt.Errorf("too many items requested for the BatchGetItem call: %d > %d", total, MaxBatchGetKeys)
	}

	out := &dynamodb.BatchGetItemOutput{
		Responses:       make(map[string][]map[string]types.AttributeValue),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}
	err := s.db.View(func(txn *badger.Txn) error {
		for tableName, ka := range params.RequestItems {
			tabl, err := s.getTable(&tableName)
			if err != nil {
				return err
			}
			paths, err := projection(ka.ProjectionExpression, ka.ExpressionAttributeNames)
			if err != nil {
				return err
			}
			var unprocessed []map[string]types.AttributeValue
			for _, k := range ka.Keys {
				key, err := tabl.tableKey(k)
				if err != nil {
					return fmt.Errorf("batch get %s: %w", tableName, err)
				}
				if s.throttle != nil && s.throttle(tableName, k) {
					unprocessed = append(unprocessed, k)
					continue
				}
				item, err := readItem(txn, key)
				if err != nil {
					return err
				}
				if item != nil {
					out.Responses[tableName] = append(out.Responses[tableName], expr.Project(item, paths))
				}
			}
			if len(unprocessed) > 0 {
				rest := ka
				rest.Keys = unprocessed
				out.UnprocessedKeys[tableName] = rest
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
