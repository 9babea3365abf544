package ddbsdk

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AWSDynamoClientV2 is the part of the DynamoDB API the client uses.
// It is satisfied by *dynamodb.Client and by the local ddbstore.Store.
type AWSDynamoClientV2 interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Item represents a raw DynamoDB item as returned from read operations.
// Callers should use attributevalue.UnmarshalMap to convert to their struct.
type Item = map[string]types.AttributeValue

// Metrics receives the client's operational signals. The observability
// package provides a Prometheus implementation.
type Metrics interface {
	// BatchItems counts items of a batch operation by outcome:
	// "successful", "unprocessed" or "failed".
	BatchItems(op, outcome string, n int)
	BatchRetry(op string)
	BreakerStateChange(name, from, to string)
}

type nopMetrics struct{}

func (nopMetrics) BatchItems(string, string, int)            {}
func (nopMetrics) BatchRetry(string)                         {}
func (nopMetrics) BreakerStateChange(string, string, string) {}
