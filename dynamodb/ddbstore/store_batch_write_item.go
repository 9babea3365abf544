package ddbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// MaxBatchWriteRequests is DynamoDB's limit on requests per BatchWriteItem.
const MaxBatchWriteRequests = 25

type batchWrite struct {
	tabl *tableSchema
	key  []byte
	put  map[string]types.AttributeValue // nil for deletes
}

// BatchWriteItem puts or deletes up to 25 items across tables. Requests
// rejected by the store's ThrottleFunc are returned in UnprocessedItems.
func (s *Store) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if params == nil || len(params.RequestItems) == 0 {
		return nil, fmt.Errorf("request items are required")
	}
	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	if total > MaxBatchWriteRequests {
		return nil, fmt.Errorf("too many items requested for the BatchWriteItem call: %d > %d", total, MaxBatchWriteRequests)
	}

	var writes []batchWrite
	unprocessed := make(map[string][]types.WriteRequest)
	seen := make(map[string]bool)
	for tableName, reqs := range params.RequestItems {
		tabl, err := s.getTable(&tableName)
		if err != nil {
			return nil, err
		}
		for _, req := range reqs {
			w := batchWrite{tabl: tabl}
			var keyAttrs map[string]types.AttributeValue
			switch {
			case req.PutRequest != nil && req.DeleteRequest == nil:
				keyAttrs = req.PutRequest.Item
				k, ok, err := tabl.keys.encode(keyAttrs)
				if err != nil {
					return nil, fmt.Errorf("batch write %s: %w", tableName, err)
				}
				if !ok {
					return nil, fmt.Errorf("batch write %s: missing key attributes", tableName)
				}
				w.key, w.put = k, req.PutRequest.Item
			case req.DeleteRequest != nil && req.PutRequest == nil:
				keyAttrs = req.DeleteRequest.Key
				w.key, err = tabl.tableKey(keyAttrs)
				if err != nil {
					return nil, fmt.Errorf("batch write %s: %w", tableName, err)
				}
			default:
				return nil, fmt.Errorf("batch write %s: a write request needs exactly one of put or delete", tableName)
			}
			if seen[string(w.key)] {
				return nil, fmt.Errorf("provided list of item keys contains duplicates")
			}
			seen[string(w.key)] = true
			if s.throttle != nil && s.throttle(tableName, keyAttrs) {
				unprocessed[tableName] = append(unprocessed[tableName], req)
				continue
			}
			writes = append(writes, w)
		}
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, w := range writes {
			old, err := readItem(txn, w.key)
			if err != nil {
				return err
			}
			if w.put != nil {
				err = w.tabl.writeItem(txn, w.put, old)
			} else if old != nil {
				err = w.tabl.removeItem(txn, old)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil
}
