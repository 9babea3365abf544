package ddbsdk

import (
	"context"
	"fmt"
	"time"

	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// BatchConfig tunes BatchGet and BatchWrite.
type BatchConfig struct {
	// ReadChunkSize is the number of keys per BatchGetItem call, at most 100.
	ReadChunkSize int `yaml:"readChunkSize" validate:"omitempty,min=1,max=100"`
	// WriteChunkSize is the number of requests per BatchWriteItem call, at most 25.
	WriteChunkSize int `yaml:"writeChunkSize" validate:"omitempty,min=1,max=25"`
	// MaxRetries is the number of retries per chunk after the first attempt.
	// Negative disables retries.
	MaxRetries int `yaml:"maxRetries"`
	// BaseDelay is the delay before the first retry; it doubles per retry.
	BaseDelay time.Duration `yaml:"baseDelay"`
	// ChunkDelay is the pause between chunks. Negative disables it.
	ChunkDelay time.Duration `yaml:"chunkDelay"`
}

// DefaultBatchConfig returns the DynamoDB limits with 3 retries from 100ms.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		ReadChunkSize:  100,
		WriteChunkSize: 25,
		MaxRetries:     3,
		BaseDelay:      100 * time.Millisecond,
		ChunkDelay:     10 * time.Millisecond,
	}
}

func (b BatchConfig) withDefaults() BatchConfig {
	def := DefaultBatchConfig()
	if b.ReadChunkSize <= 0 || b.ReadChunkSize > def.ReadChunkSize {
		b.ReadChunkSize = def.ReadChunkSize
	}
	if b.WriteChunkSize <= 0 || b.WriteChunkSize > def.WriteChunkSize {
		b.WriteChunkSize = def.WriteChunkSize
	}
	switch {
	case b.MaxRetries == 0:
		b.MaxRetries = def.MaxRetries
	case b.MaxRetries < 0:
		b.MaxRetries = 0
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = def.BaseDelay
	}
	switch {
	case b.ChunkDelay == 0:
		b.ChunkDelay = def.ChunkDelay
	case b.ChunkDelay < 0:
		b.ChunkDelay = 0
	}
	return b
}

// FailedAction is a write that hit a hard error on every attempt.
type FailedAction struct {
	Action BatchAction
	Err    error
}

// BatchWriteResult accounts for every action passed to BatchWrite exactly
// once. Unprocessed and Failed actions were not applied and should be
// retried or reported by the caller.
type BatchWriteResult struct {
	Successful  []BatchAction
	Failed      []FailedAction
	Unprocessed []BatchAction
	Retries     int
}

// Done reports whether every action was applied.
func (r BatchWriteResult) Done() bool {
	return len(r.Failed) == 0 && len(r.Unprocessed) == 0
}

// FailedKey is a key whose read hit a hard error on every attempt.
type FailedKey struct {
	Key table.PrimaryKey
	Err error
}

// BatchGetResult holds the items found, in no particular order. Keys that
// don't exist are simply absent. Unprocessed and Failed keys were not read.
type BatchGetResult struct {
	Items       []Item
	Unprocessed []table.PrimaryKey
	Failed      []FailedKey
	Retries     int
}

// Done reports whether every key was read.
func (r BatchGetResult) Done() bool {
	return len(r.Failed) == 0 && len(r.Unprocessed) == 0
}

// chunkOutcome is what remains of one chunk after all its attempts.
type chunkOutcome[T any] struct {
	unprocessed []T
	failed      []T
	err         error
	retries     int
}

// runChunk submits pending until the store reports nothing unprocessed or
// the retries run out. send returns the subset the store left unprocessed.
func runChunk[T any](ctx context.Context, c *Client, op string, pending []T, send func(context.Context, []T) ([]T, error)) chunkOutcome[T] {
	var out chunkOutcome[T]
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			out.retries++
			c.metrics.BatchRetry(op)
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				out.failed, out.err = pending, err
				return out
			}
		}
		rest, err := send(ctx, pending)
		if err != nil {
			lastErr = err
			c.log.Warn("batch chunk failed",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Int("items", len(pending)),
				zap.Error(err))
		} else {
			lastErr = nil
			pending = rest
			if len(pending) == 0 {
				return out
			}
			c.log.Debug("batch chunk partially processed",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Int("unprocessed", len(pending)))
		}
		if attempt >= c.batch.MaxRetries {
			if lastErr != nil {
				out.failed, out.err = pending, lastErr
			} else {
				out.unprocessed = pending
			}
			return out
		}
	}
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

type keyedAction struct {
	id     string
	action BatchAction
	req    types.WriteRequest
}

// keyedActions validates actions and indexes them by table and key. It also
// returns the key definition of each table, to map unprocessed items back.
func keyedActions(actions []BatchAction) ([]keyedAction, map[string]table.PrimaryKeyDefinition, error) {
	seen := make(map[string]bool, len(actions))
	defs := make(map[string]table.PrimaryKeyDefinition)
	out := make([]keyedAction, 0, len(actions))
	for i, a := range actions {
		req, err := a.ToBatchWriteRequest()
		if err != nil {
			return nil, nil, fmt.Errorf("action %d: %w", i, err)
		}
		pk, err := a.PrimaryKey()
		if err != nil {
			return nil, nil, fmt.Errorf("action %d: %w", i, err)
		}
		name := *a.TableName()
		id := name + "/" + pk.String()
		if seen[id] {
			return nil, nil, fmt.Errorf("action %d: duplicate key %s in batch", i, id)
		}
		seen[id] = true
		defs[name] = pk.Definition
		out = append(out, keyedAction{id: id, action: a, req: req})
	}
	return out, defs, nil
}

// BatchWrite applies puts and deletes in chunks of WriteChunkSize, retrying
// unprocessed requests and hard errors per chunk. Partial failure is
// reported in the result, not as an error; the error is for invalid input.
// Conditional actions and duplicate keys are invalid.
func (c *Client) BatchWrite(ctx context.Context, actions []BatchAction) (BatchWriteResult, error) {
	ctx, span := c.tracer.Start(ctx, "ddbsdk.BatchWrite")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.actions", len(actions)))

	keyed, defs, err := keyedActions(actions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid batch")
		return BatchWriteResult{}, err
	}
	byID := make(map[string]keyedAction, len(keyed))
	for _, k := range keyed {
		byID[k.id] = k
	}

	send := func(ctx context.Context, pending []keyedAction) ([]keyedAction, error) {
		reqs := make(map[string][]types.WriteRequest)
		for _, k := range pending {
			name := *k.action.TableName()
			reqs[name] = append(reqs[name], k.req)
		}
		var out *dynamodb.BatchWriteItemOutput
		err := c.call(ctx, "batch write", func(ctx context.Context) error {
			var err error
			out, err = c.awsddb.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: reqs})
			return err
		})
		if err != nil {
			return nil, err
		}
		var rest []keyedAction
		for name, wrs := range out.UnprocessedItems {
			def, ok := defs[name]
			if !ok {
				return nil, fmt.Errorf("store returned unprocessed items for unknown table %s", name)
			}
			for _, wr := range wrs {
				id, err := writeRequestID(name, def, wr)
				if err != nil {
					return nil, err
				}
				k, ok := byID[id]
				if !ok {
					return nil, fmt.Errorf("store returned an unprocessed item that was not requested: %s", id)
				}
				rest = append(rest, k)
			}
		}
		return rest, nil
	}

	var res BatchWriteResult
	for i, chunk := range chunks(keyed, c.batch.WriteChunkSize) {
		if i > 0 {
			if err := sleep(ctx, c.batch.ChunkDelay); err != nil {
				for _, k := range chunk {
					res.Failed = append(res.Failed, FailedAction{Action: k.action, Err: err})
				}
				continue
			}
		}
		o := runChunk(ctx, c, "batch_write", chunk, send)
		res.Retries += o.retries
		notDone := make(map[string]bool, len(o.failed)+len(o.unprocessed))
		for _, k := range o.failed {
			notDone[k.id] = true
			res.Failed = append(res.Failed, FailedAction{Action: k.action, Err: o.err})
		}
		for _, k := range o.unprocessed {
			notDone[k.id] = true
			res.Unprocessed = append(res.Unprocessed, k.action)
		}
		for _, k := range chunk {
			if !notDone[k.id] {
				res.Successful = append(res.Successful, k.action)
			}
		}
	}

	c.metrics.BatchItems("batch_write", "successful", len(res.Successful))
	c.metrics.BatchItems("batch_write", "unprocessed", len(res.Unprocessed))
	c.metrics.BatchItems("batch_write", "failed", len(res.Failed))
	span.SetAttributes(
		attribute.Int("batch.successful", len(res.Successful)),
		attribute.Int("batch.unprocessed", len(res.Unprocessed)),
		attribute.Int("batch.failed", len(res.Failed)),
		attribute.Int("batch.retries", res.Retries),
	)
	if !res.Done() {
		c.log.Warn("batch write incomplete",
			zap.Int("successful", len(res.Successful)),
			zap.Int("unprocessed", len(res.Unprocessed)),
			zap.Int("failed", len(res.Failed)))
	}
	return res, nil
}

func writeRequestID(tableName string, def table.PrimaryKeyDefinition, wr types.WriteRequest) (string, error) {
	var attrs Item
	switch {
	case wr.PutRequest != nil:
		attrs = wr.PutRequest.Item
	case wr.DeleteRequest != nil:
		attrs = wr.DeleteRequest.Key
	}
	pk, err := def.ExtractPrimaryKey(attrs)
	if err != nil {
		return "", fmt.Errorf("unprocessed item: %w", err)
	}
	return tableName + "/" + pk.String(), nil
}

type keyedKey struct {
	id  string
	key table.PrimaryKey
	av  Item
}

// BatchGet reads keys from def in chunks of ReadChunkSize, retrying
// unprocessed keys and hard errors per chunk. Duplicate keys are read once.
// The error is for invalid input; partial failure is in the result.
func (c *Client) BatchGet(ctx context.Context, def table.TableDefinition, keys []table.PrimaryKey) (BatchGetResult, error) {
	ctx, span := c.tracer.Start(ctx, "ddbsdk.BatchGet")
	defer span.End()
	span.SetAttributes(attribute.String("db.table", def.Name), attribute.Int("batch.keys", len(keys)))

	var keyed []keyedKey
	byID := make(map[string]keyedKey, len(keys))
	for i, k := range keys {
		av, err := k.Marshal()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid key")
			return BatchGetResult{}, fmt.Errorf("key %d: %w", i, err)
		}
		id := k.String()
		if _, dup := byID[id]; dup {
			continue
		}
		kk := keyedKey{id: id, key: k, av: av}
		byID[id] = kk
		keyed = append(keyed, kk)
	}

	var res BatchGetResult
	send := func(ctx context.Context, pending []keyedKey) ([]keyedKey, error) {
		ka := types.KeysAndAttributes{ConsistentRead: aws.Bool(true)}
		for _, k := range pending {
			ka.Keys = append(ka.Keys, k.av)
		}
		var out *dynamodb.BatchGetItemOutput
		err := c.call(ctx, "batch get", func(ctx context.Context) error {
			var err error
			out, err = c.awsddb.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{def.Name: ka},
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, out.Responses[def.Name]...)
		var rest []keyedKey
		for _, av := range out.UnprocessedKeys[def.Name].Keys {
			pk, err := def.ExtractPrimaryKey(av)
			if err != nil {
				return nil, fmt.Errorf("unprocessed key: %w", err)
			}
			k, ok := byID[pk.String()]
			if !ok {
				return nil, fmt.Errorf("store returned an unprocessed key that was not requested: %s", pk)
			}
			rest = append(rest, k)
		}
		return rest, nil
	}

	for i, chunk := range chunks(keyed, c.batch.ReadChunkSize) {
		if i > 0 {
			if err := sleep(ctx, c.batch.ChunkDelay); err != nil {
				for _, k := range chunk {
					res.Failed = append(res.Failed, FailedKey{Key: k.key, Err: err})
				}
				continue
			}
		}
		o := runChunk(ctx, c, "batch_get", chunk, send)
		res.Retries += o.retries
		for _, k := range o.failed {
			res.Failed = append(res.Failed, FailedKey{Key: k.key, Err: o.err})
		}
		for _, k := range o.unprocessed {
			res.Unprocessed = append(res.Unprocessed, k.key)
		}
	}

	c.metrics.BatchItems("batch_get", "successful", len(keyed)-len(res.Unprocessed)-len(res.Failed))
	c.metrics.BatchItems("batch_get", "unprocessed", len(res.Unprocessed))
	c.metrics.BatchItems("batch_get", "failed", len(res.Failed))
	span.SetAttributes(
		attribute.Int("batch.items", len(res.Items)),
		attribute.Int("batch.unprocessed", len(res.Unprocessed)),
		attribute.Int("batch.failed", len(res.Failed)),
	)
	return res, nil
}
