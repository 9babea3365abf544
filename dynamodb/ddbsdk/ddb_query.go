package ddbsdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const defaultPageSize = 10

// SortKeyStrategy defines how to filter on the sort key in a range query.
type SortKeyStrategy func(skName string) expression.KeyConditionBuilder

// Equals returns items where the sort key equals v.
func Equals(v string) SortKeyStrategy {
	return func(skName string) expression.KeyConditionBuilder {
		return expression.KeyEqual(expression.Key(skName), expression.Value(v))
	}
}

// BeginsWith returns items where the sort key starts with prefix.
func BeginsWith(prefix string) SortKeyStrategy {
	return func(skName string) expression.KeyConditionBuilder {
		return expression.KeyBeginsWith(expression.Key(skName), prefix)
	}
}

// Between returns items where the sort key is between start and end (inclusive).
func Between(start, end string) SortKeyStrategy {
	return func(skName string) expression.KeyConditionBuilder {
		return expression.KeyBetween(expression.Key(skName), expression.Value(start), expression.Value(end))
	}
}

// GreaterThanOrEqual returns items where the sort key is >= v.
func GreaterThanOrEqual(v string) SortKeyStrategy {
	return func(skName string) expression.KeyConditionBuilder {
		return expression.KeyGreaterThanEqual(expression.Key(skName), expression.Value(v))
	}
}

// LessThanOrEqual returns items where the sort key is <= v.
func LessThanOrEqual(v string) SortKeyStrategy {
	return func(skName string) expression.KeyConditionBuilder {
		return expression.KeyLessThanEqual(expression.Key(skName), expression.Value(v))
	}
}

type KeyCondition struct {
	partition string
	strategy  SortKeyStrategy
}

// NewKeyCondition matches one partition, optionally narrowed by strategy.
func NewKeyCondition(partition string, strategy SortKeyStrategy) KeyCondition {
	return KeyCondition{
		partition: partition,
		strategy:  strategy,
	}
}

// Querier pages through one partition of a table or GSI.
type Querier struct {
	c *Client

	table   table.TableDefinition
	keyCond KeyCondition

	cursor  map[string]types.AttributeValue
	started bool

	eventuallyConsistent bool
	pageSize             int32
	descending           bool
	indexName            string
	filter               expression.ConditionBuilder
}

// QueryResult is one page of a query. Cursor resumes after the page and is
// empty on the last page.
type QueryResult struct {
	Items  []Item
	Cursor string
	IsDone bool
}

// NewQuery creates a querier. Configure it with the With methods before the
// first call to Next.
func (c *Client) NewQuery(def table.TableDefinition, kc KeyCondition) *Querier {
	return &Querier{
		c:        c,
		table:    def,
		keyCond:  kc,
		pageSize: defaultPageSize,
	}
}

func (q *Querier) WithEventuallyConsistentReads() *Querier {
	q.eventuallyConsistent = true
	return q
}

func (q *Querier) WithDescending() *Querier {
	q.descending = true
	return q
}

func (q *Querier) WithPageSize(limit int) *Querier {
	if limit > 0 {
		q.pageSize = int32(limit)
	}
	return q
}

// WithGSI queries a global secondary index instead of the table.
// Reads from a GSI are always eventually consistent.
func (q *Querier) WithGSI(indexName string) *Querier {
	q.indexName = indexName
	q.eventuallyConsistent = true
	return q
}

// WithFilter drops items not matching c after they are read.
func (q *Querier) WithFilter(c expression.ConditionBuilder) *Querier {
	q.filter = c
	return q
}

// WithCursor resumes a query from a cursor returned by an earlier page.
func (q *Querier) WithCursor(cursor string) (*Querier, error) {
	key, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	q.cursor = key
	return q, nil
}

func (q *Querier) keyNames() (table.PrimaryKeyDefinition, error) {
	if q.indexName == "" {
		return q.table.KeyDefinitions, nil
	}
	gsi, ok := q.table.GSI(q.indexName)
	if !ok {
		return table.PrimaryKeyDefinition{}, fmt.Errorf("table %s has no index %s", q.table.Name, q.indexName)
	}
	return gsi.KeyDefinitions, nil
}

// Next fetches the next page. After the last page it returns an empty,
// done result.
func (q *Querier) Next(ctx context.Context) (*QueryResult, error) {
	if q.started && q.cursor == nil {
		return &QueryResult{IsDone: true}, nil
	}
	keys, err := q.keyNames()
	if err != nil {
		return nil, err
	}
	key := expression.KeyEqual(expression.Key(keys.PartitionKey.Name), expression.Value(q.keyCond.partition))
	if q.keyCond.strategy != nil {
		key = key.And(q.keyCond.strategy(keys.SortKey.Name))
	}
	b := expression.NewBuilder().WithKeyCondition(key)
	if q.filter.IsSet() {
		b = b.WithFilter(q.filter)
	}
	e, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build query expression: %w", err)
	}

	in := &dynamodb.QueryInput{
		TableName:                 &q.table.Name,
		KeyConditionExpression:    e.KeyCondition(),
		FilterExpression:          e.Filter(),
		ExpressionAttributeNames:  e.Names(),
		ExpressionAttributeValues: e.Values(),
		ConsistentRead:            aws.Bool(!q.eventuallyConsistent),
		Limit:                     aws.Int32(q.pageSize),
		ScanIndexForward:          aws.Bool(!q.descending),
		ExclusiveStartKey:         q.cursor,
	}
	if q.indexName != "" {
		in.IndexName = aws.String(q.indexName)
	}

	var out *dynamodb.QueryOutput
	err = q.c.call(ctx, "query", func(ctx context.Context) error {
		out, err = q.c.awsddb.Query(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	q.started = true
	q.cursor = out.LastEvaluatedKey

	res := &QueryResult{Items: out.Items, IsDone: out.LastEvaluatedKey == nil}
	if !res.IsDone {
		res.Cursor, err = EncodeCursor(out.LastEvaluatedKey)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// QueryAll fetches every remaining page.
func (q *Querier) QueryAll(ctx context.Context) ([]Item, error) {
	var all []Item
	for {
		res, err := q.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Items...)
		if res.IsDone {
			return all, nil
		}
	}
}

// EncodeCursor renders a LastEvaluatedKey as an opaque URL-safe string.
// Only string key attributes are supported.
func EncodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	var flat map[string]string
	if err := attributevalue.UnmarshalMap(key, &flat); err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor reverses EncodeCursor. An empty cursor decodes to nil.
func DecodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var flat map[string]string
	if err := json.Unmarshal(b, &flat); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	key, err := attributevalue.MarshalMap(flat)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return key, nil
}
