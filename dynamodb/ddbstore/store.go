// Package ddbstore is an embedded DynamoDB look-alike backed by BadgerDB.
//
// It implements the subset of the DynamoDB client API the rest of the module
// uses (item reads and writes, queries on the table and its GSIs, and batch
// operations) with DynamoDB's expression syntax, so it can stand in for a
// real table in tests and in local mode.
package ddbstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/acksell/larder/dynamodb/ddbstore/expr"
	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// maxTxnAttempts bounds retries of a badger transaction that lost a
// write-write conflict.
const maxTxnAttempts = 5

// Store is a DynamoDB-compatible store backed by BadgerDB.
// All keys, including GSI keys, must be strings.
type Store struct {
	db       *badger.DB
	tables   map[string]*tableSchema
	throttle ThrottleFunc
	log      *zap.Logger
}

type tableSchema struct {
	definition table.TableDefinition
	keys       keyEncoder
	gsis       map[string]keyEncoder
}

// ThrottleFunc decides whether a batch request leaves the given key
// unprocessed. It is used to reproduce DynamoDB's partial batch results.
type ThrottleFunc func(tableName string, key map[string]types.AttributeValue) bool

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger receives badger's own logs. If nil, logging is disabled.
	Logger *zap.Logger
	// Throttle, if set, is consulted for every key of a batch request.
	Throttle ThrottleFunc
}

// New creates a new BadgerDB-backed DynamoDB store.
func New(opts StoreOptions, defs ...table.TableDefinition) (*Store, error) {
	tables := make(map[string]*tableSchema)
	for _, def := range defs {
		if err := checkStringKeys(def); err != nil {
			return nil, fmt.Errorf("table %s: %w", def.Name, err)
		}
		schema := &tableSchema{
			definition: def,
			keys:       newTableEncoder(def),
			gsis:       make(map[string]keyEncoder),
		}
		for _, gsi := range def.GSIs {
			schema.gsis[gsi.Name] = newIndexEncoder(def, gsi)
		}
		tables[def.Name] = schema
	}

	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
		badgerOpts = badgerOpts.WithLogger(nil)
	} else {
		badgerOpts = badgerOpts.WithLogger(badgerLogger{log.Named("badger").Sugar()})
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{
		db:       db,
		tables:   tables,
		throttle: opts.Throttle,
		log:      log,
	}, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

func checkStringKeys(def table.TableDefinition) error {
	check := func(owner string, k table.PrimaryKeyDefinition) error {
		if k.PartitionKey.Name == "" {
			return fmt.Errorf("%s has no partition key", owner)
		}
		for _, kd := range []table.KeyDef{k.PartitionKey, k.SortKey} {
			if kd.Name != "" && kd.Kind != table.KeyKindS {
				return fmt.Errorf("%s key %q has kind %s, only string keys are supported", owner, kd.Name, kd.Kind)
			}
		}
		return nil
	}
	if err := check("table", def.KeyDefinitions); err != nil {
		return err
	}
	for _, g := range def.GSIs {
		if err := check("index "+g.Name, g.KeyDefinitions); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) getTable(tableName *string) (*tableSchema, error) {
	if tableName == nil {
		return nil, fmt.Errorf("table name is required")
	}
	schema, ok := s.tables[*tableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + *tableName)}
	}
	return schema, nil
}

// encoder returns the key encoder of the table or of one of its indexes.
func (t *tableSchema) encoder(indexName *string) (keyEncoder, error) {
	if indexName == nil || *indexName == "" {
		return t.keys, nil
	}
	enc, ok := t.gsis[*indexName]
	if !ok {
		return keyEncoder{}, fmt.Errorf("GSI not found: %s", *indexName)
	}
	return enc, nil
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent transactions.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("transaction conflict, retrying", zap.Int("attempt", attempt))
	}
	return err
}

// readItem returns the stored item under key, or nil if there is none.
func readItem(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	it, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item map[string]types.AttributeValue
	err = it.Value(func(val []byte) error {
		item, err = decodeItem(val)
		return err
	})
	return item, err
}

// writeItem stores item under its table key and replaces its index entries.
// old is the item previously stored under the same key, if any.
func (t *tableSchema) writeItem(txn *badger.Txn, item, old map[string]types.AttributeValue) error {
	key, _, err := t.keys.encode(item)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	val, err := encodeItem(item)
	if err != nil {
		return err
	}
	if err := t.deleteIndexEntries(txn, old); err != nil {
		return err
	}
	if err := txn.Set(key, val); err != nil {
		return err
	}
	for name, enc := range t.gsis {
		gsiKey, ok, err := enc.encode(item)
		if err != nil {
			return fmt.Errorf("index %s: %w", name, err)
		}
		if !ok {
			// sparse index, the item does not project into it
			continue
		}
		if err := txn.Set(gsiKey, val); err != nil {
			return err
		}
	}
	return nil
}

// removeItem deletes old and its index entries.
func (t *tableSchema) removeItem(txn *badger.Txn, old map[string]types.AttributeValue) error {
	key, _, err := t.keys.encode(old)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	if err := txn.Delete(key); err != nil {
		return err
	}
	return t.deleteIndexEntries(txn, old)
}

func (t *tableSchema) deleteIndexEntries(txn *badger.Txn, old map[string]types.AttributeValue) error {
	if old == nil {
		return nil
	}
	for _, enc := range t.gsis {
		gsiKey, ok, err := enc.encode(old)
		if err != nil || !ok {
			continue
		}
		if err := txn.Delete(gsiKey); err != nil {
			return err
		}
	}
	return nil
}

// tableKey validates that key holds exactly the table's key attributes.
func (t *tableSchema) tableKey(key map[string]types.AttributeValue) ([]byte, error) {
	want := 1
	if t.definition.KeyDefinitions.SortKey.Name != "" {
		want = 2
	}
	if len(key) != want {
		return nil, fmt.Errorf("the provided key element does not match the schema")
	}
	enc, ok, err := t.keys.encode(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("the provided key element does not match the schema")
	}
	return enc, nil
}

func condition(src *string, names map[string]string, values map[string]types.AttributeValue) (expr.Condition, error) {
	if src == nil || *src == "" {
		return expr.Condition{}, nil
	}
	return expr.ParseCondition(*src, expr.Input{Names: names, Values: values})
}

func projection(src *string, names map[string]string) ([]expr.Path, error) {
	if src == nil || *src == "" {
		return nil, nil
	}
	return expr.ParseProjection(*src, expr.Input{Names: names})
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, args ...any) {
	l.s.Errorf(strings.TrimSpace(f), args...)
}

func (l badgerLogger) Warningf(f string, args ...any) {
	l.s.Warnf(strings.TrimSpace(f), args...)
}

func (l badgerLogger) Infof(f string, args ...any) {
	l.s.Infof(strings.TrimSpace(f), args...)
}

func (l badgerLogger) Debugf(f string, args ...any) {
	l.s.Debugf(strings.TrimSpace(f), args...)
}
