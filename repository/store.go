package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"go.uber.org/zap"

	"github.com/acksell/larder"
	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/dynamodb/index"
	"github.com/acksell/larder/dynamodb/table"
)

const updatedAtAttr = "updatedAt"

type entityPtr[T any] interface {
	*T
	larder.Entity
	Touch(now time.Time)
}

// Changes maps attribute names to their new values. A nil value removes
// the attribute.
type Changes map[string]any

// entityStore implements the operations shared by every entity type on top
// of one PrimaryIndex.
type entityStore[T any, P entityPtr[T]] struct {
	db    *ddbsdk.Client
	index index.PrimaryIndex
	// ownerAttr holds the id of the user allowed to write the entity.
	ownerAttr string

	cache *cache.Cache
	ns    string
	clock cache.Clock
	log   *zap.Logger

	// afterWrite runs after every successful write.
	afterWrite func()
}

func newEntityStore[T any, P entityPtr[T]](db *ddbsdk.Client, pi index.PrimaryIndex, ownerAttr, ns string, o options) *entityStore[T, P] {
	return &entityStore[T, P]{
		db:        db,
		index:     pi,
		ownerAttr: ownerAttr,
		cache:     o.cache,
		ns:        ns,
		clock:     o.clock,
		log:       o.log.With(zap.String("entity", pi.EntityType)),
	}
}

func (s *entityStore[T, P]) caching() bool {
	return s.cache != nil && s.ns != ""
}

// clone returns a shallow copy so callers never mutate a cached entity.
func clone[T any, P entityPtr[T]](p P) P {
	if p == nil {
		return nil
	}
	c := *p
	return P(&c)
}

func (s *entityStore[T, P]) key(id string) (table.PrimaryKey, error) {
	if id == "" {
		return table.PrimaryKey{}, fmt.Errorf("%s: id is required", s.index.EntityType)
	}
	return s.index.PrimaryKey(map[string]string{"id": id})
}

func (s *entityStore[T, P]) decode(item ddbsdk.Item) (P, error) {
	p := P(new(T))
	if err := attributevalue.UnmarshalMap(item, p); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", s.index.EntityType, err)
	}
	return p, nil
}

// load reads id from the store, bypassing the cache.
func (s *entityStore[T, P]) load(ctx context.Context, id string) (P, error) {
	key, err := s.key(id)
	if err != nil {
		return nil, err
	}
	item, err := s.db.GetItem(ctx, ddbsdk.GetItemRequest{Table: s.index.Table, Key: key})
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", s.index.EntityType, id, err)
	}
	if item == nil {
		return nil, nil
	}
	return s.decode(item)
}

// GetByID returns the entity with id, or nil if there is none.
func (s *entityStore[T, P]) GetByID(ctx context.Context, id string) (P, error) {
	if !s.caching() {
		return s.load(ctx, id)
	}
	p, err := cache.GetOrSet(ctx, s.cache, s.ns, id, func(ctx context.Context) (P, error) {
		return s.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (s *entityStore[T, P]) cached(id string) (P, bool) {
	if !s.caching() {
		return nil, false
	}
	v, ok := s.cache.Get(s.ns, id)
	if !ok {
		return nil, false
	}
	p, ok := v.(P)
	return p, ok
}

// QueryOption narrows or orders a query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	sortKey    ddbsdk.SortKeyStrategy
	descending bool
	filter     expression.ConditionBuilder
}

// Descending returns the highest sort keys first, e.g. newest first.
func Descending() QueryOption {
	return func(o *queryOptions) {
		o.descending = true
	}
}

// SortKey restricts the index sort key.
func SortKey(s ddbsdk.SortKeyStrategy) QueryOption {
	return func(o *queryOptions) {
		o.sortKey = s
	}
}

// Filter drops items not matching c. The store applies it after the page
// limit, so a filtered page may hold fewer items than the limit.
func Filter(c expression.ConditionBuilder) QueryOption {
	return func(o *queryOptions) {
		o.filter = c
	}
}

func (s *entityStore[T, P]) newQuery(indexName, indexKey string, limit int, opts []QueryOption) (*ddbsdk.Querier, error) {
	if _, ok := s.index.Index(indexName); !ok {
		return nil, fmt.Errorf("%s has no index %s", s.index.EntityType, indexName)
	}
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	q := s.db.NewQuery(s.index.Table, ddbsdk.NewKeyCondition(indexKey, o.sortKey)).
		WithGSI(indexName).
		WithPageSize(limit)
	if o.descending {
		q.WithDescending()
	}
	if o.filter.IsSet() {
		q.WithFilter(o.filter)
	}
	return q, nil
}

func (s *entityStore[T, P]) decodeAll(items []ddbsdk.Item) ([]P, error) {
	out := make([]P, 0, len(items))
	for _, item := range items {
		p, err := s.decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Query returns one page of the entities whose index partition key is
// indexKey on the GSI indexName, ordered by the index sort key.
func (s *entityStore[T, P]) Query(ctx context.Context, indexName, indexKey string, page Page, opts ...QueryOption) (PageResult[P], error) {
	q, err := s.newQuery(indexName, indexKey, page.limit(), opts)
	if err != nil {
		return PageResult[P]{}, err
	}
	if page.Cursor != "" {
		if _, err := q.WithCursor(page.Cursor); err != nil {
			return PageResult[P]{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
	}
	res, err := q.Next(ctx)
	if err != nil {
		return PageResult[P]{}, fmt.Errorf("query %s %s: %w", s.index.EntityType, indexName, err)
	}
	items, err := s.decodeAll(res.Items)
	if err != nil {
		return PageResult[P]{}, err
	}
	return PageResult[P]{Items: items, NextCursor: res.Cursor}, nil
}

// queryAll reads every page of a query.
func (s *entityStore[T, P]) queryAll(ctx context.Context, indexName, indexKey string, opts ...QueryOption) ([]P, error) {
	q, err := s.newQuery(indexName, indexKey, MaxPageSize, opts)
	if err != nil {
		return nil, err
	}
	items, err := q.QueryAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", s.index.EntityType, indexName, err)
	}
	return s.decodeAll(items)
}

// cachedPage serves a listing page from ns, calling fetch on a miss.
func (s *entityStore[T, P]) cachedPage(ctx context.Context, ns, key string, fetch func(context.Context) (PageResult[P], error)) (PageResult[P], error) {
	if s.cache == nil {
		return fetch(ctx)
	}
	res, err := cache.GetOrSet(ctx, s.cache, ns, key, fetch)
	if err != nil {
		return PageResult[P]{}, err
	}
	items := make([]P, len(res.Items))
	for i, p := range res.Items {
		items[i] = clone(p)
	}
	return PageResult[P]{Items: items, NextCursor: res.NextCursor}, nil
}

// guard holds while callerID still owns the stored entity and nobody
// wrote it since it was read at updatedAt.
func (s *entityStore[T, P]) guard(callerID string, updatedAt time.Time) expression.ConditionBuilder {
	return expression.Name(s.ownerAttr).Equal(expression.Value(callerID)).
		And(expression.Name(updatedAtAttr).Equal(expression.Value(updatedAt)))
}

// conditionError explains a failed write condition by rereading the entity.
func (s *entityStore[T, P]) conditionError(ctx context.Context, id, callerID string) error {
	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case cur == nil:
		err = ErrNotFound
	case cur.Owner() != callerID:
		err = ErrNotOwner
	default:
		err = ErrConflict
	}
	return fmt.Errorf("%s %s: %w", s.index.EntityType, id, err)
}

func (s *entityStore[T, P]) written(ids ...string) {
	if s.caching() {
		for _, id := range ids {
			s.cache.Invalidate(s.ns, id)
		}
	}
	if s.afterWrite != nil {
		s.afterWrite()
	}
}

// Put creates or replaces p on behalf of callerID, who must own it.
//
// An entity with a zero UpdatedAt is created and the write fails if the id
// is taken. Otherwise the stored entity is replaced only if it still has
// the same UpdatedAt, so a stale copy never overwrites a newer write. On
// success p carries its new timestamps; on failure it is left unchanged.
func (s *entityStore[T, P]) Put(ctx context.Context, callerID string, p P) error {
	if p == nil {
		return fmt.Errorf("put %s: nil entity", s.index.EntityType)
	}
	if callerID == "" || p.Owner() != callerID {
		return fmt.Errorf("put %s %s: %w", s.index.EntityType, p.GetID(), ErrNotOwner)
	}
	if err := larder.Validate(p); err != nil {
		return err
	}
	saved := *p
	prev := p.GetMeta().UpdatedAt
	p.Touch(s.clock.Now())

	item, err := s.index.Item(p, p.IndexFields())
	if err != nil {
		*p = saved
		return err
	}
	put := ddbsdk.NewPut(s.index.Table, item)
	if prev.IsZero() {
		put.WithCondition(expression.AttributeNotExists(expression.Name(s.index.Table.KeyDefinitions.PartitionKey.Name)))
	} else {
		put.WithCondition(s.guard(callerID, prev))
	}
	if err := s.db.PutItem(ctx, put); err != nil {
		*p = saved
		if ddbsdk.IsConditionFailed(err) {
			if prev.IsZero() {
				return fmt.Errorf("%s %s: %w", s.index.EntityType, p.GetID(), ErrConflict)
			}
			return s.conditionError(ctx, p.GetID(), callerID)
		}
		return fmt.Errorf("put %s %s: %w", s.index.EntityType, p.GetID(), err)
	}
	s.written(p.GetID())
	return nil
}

// protected reports whether an attribute is derived or immutable and so
// cannot be changed by Update.
func (s *entityStore[T, P]) protected(name string) bool {
	switch name {
	case "id", "createdAt", updatedAtAttr, index.EntityTypeAttr, s.ownerAttr:
		return true
	}
	return slices.Contains(s.index.Table.KeyNames(), name)
}

// Update applies changes to the entity id on behalf of its owner and
// returns the entity as stored afterwards. The index attributes are
// recomputed from the changed entity and written in the same request,
// including the removal of sparse index keys whose source became empty.
func (s *entityStore[T, P]) Update(ctx context.Context, callerID, id string, changes Changes) (P, error) {
	if err := s.checkChanges(id, changes); err != nil {
		return nil, err
	}
	cur, err := s.loadOwned(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	return s.updateFrom(ctx, callerID, cur, changes)
}

func (s *entityStore[T, P]) checkChanges(id string, changes Changes) error {
	if len(changes) == 0 {
		return fmt.Errorf("update %s %s: no changes", s.index.EntityType, id)
	}
	for name := range changes {
		if s.protected(name) {
			return fmt.Errorf("update %s %s: attribute %q cannot be changed", s.index.EntityType, id, name)
		}
	}
	return nil
}

// loadOwned reads id from the store and checks that callerID owns it.
func (s *entityStore[T, P]) loadOwned(ctx context.Context, callerID, id string) (P, error) {
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("%s %s: %w", s.index.EntityType, id, ErrNotFound)
	}
	if cur.Owner() != callerID {
		return nil, fmt.Errorf("%s %s: %w", s.index.EntityType, id, ErrNotOwner)
	}
	return cur, nil
}

// maxConflictRetries bounds how often modify reads again after losing to a
// concurrent write.
const maxConflictRetries = 3

// modify is a read-modify-write of id. fn derives the changes from the
// entity as stored, and the write only succeeds if nobody wrote the entity
// since that read. On ErrConflict the entity is read again and fn called
// again. fn returning false leaves the entity as read.
func (s *entityStore[T, P]) modify(ctx context.Context, callerID, id string, fn func(cur P) (Changes, bool)) (P, error) {
	for attempt := 0; ; attempt++ {
		cur, err := s.loadOwned(ctx, callerID, id)
		if err != nil {
			return nil, err
		}
		changes, ok := fn(clone(cur))
		if !ok {
			return cur, nil
		}
		if err := s.checkChanges(id, changes); err != nil {
			return nil, err
		}
		next, err := s.updateFrom(ctx, callerID, cur, changes)
		if errors.Is(err, ErrConflict) && attempt < maxConflictRetries {
			s.log.Debug("concurrent write, reading again",
				zap.String("entity", s.index.EntityType), zap.String("id", id), zap.Int("attempt", attempt+1))
			continue
		}
		return next, err
	}
}

// updateFrom writes cur with changes applied, guarded on cur's UpdatedAt so
// that a write since cur was read fails with ErrConflict.
func (s *entityStore[T, P]) updateFrom(ctx context.Context, callerID string, cur P, changes Changes) (P, error) {
	id := cur.GetID()
	next, err := s.apply(cur, changes)
	if err != nil {
		return nil, err
	}
	prev := cur.GetMeta().UpdatedAt
	next.Touch(s.clock.Now())
	nextItem, err := attributevalue.MarshalMap(next)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", s.index.EntityType, err)
	}

	key, err := s.key(id)
	if err != nil {
		return nil, err
	}
	u := ddbsdk.NewUpdate(s.index.Table, key)
	names := append(sortedNames(changes), updatedAtAttr)
	for _, name := range names {
		if av, ok := nextItem[name]; ok {
			u.SetAttribute(name, av)
		} else {
			u.Remove(name)
		}
	}
	set, remove := s.index.IndexAttributes(next.IndexFields())
	for _, name := range sortedNames(set) {
		u.SetAttribute(name, set[name])
	}
	for _, name := range remove {
		u.Remove(name)
	}
	u.WithCondition(s.guard(callerID, prev))

	out, err := s.db.UpdateItem(ctx, u)
	if err != nil {
		if ddbsdk.IsConditionFailed(err) {
			return nil, s.conditionError(ctx, id, callerID)
		}
		return nil, fmt.Errorf("update %s %s: %w", s.index.EntityType, id, err)
	}
	s.written(id)
	return s.decode(out)
}

// apply returns a validated copy of cur with changes applied.
func (s *entityStore[T, P]) apply(cur P, changes Changes) (P, error) {
	item, err := attributevalue.MarshalMap(cur)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", s.index.EntityType, err)
	}
	for name, v := range changes {
		if v == nil {
			delete(item, name)
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("update %s: attribute %q: %w", s.index.EntityType, name, err)
		}
		item[name] = av
	}
	next, err := s.decode(item)
	if err != nil {
		return nil, err
	}
	if err := larder.Validate(next); err != nil {
		return nil, err
	}
	return next, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Delete removes the entity id on behalf of its owner.
func (s *entityStore[T, P]) Delete(ctx context.Context, callerID, id string) error {
	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("%s %s: %w", s.index.EntityType, id, ErrNotFound)
	}
	if cur.Owner() != callerID {
		return fmt.Errorf("%s %s: %w", s.index.EntityType, id, ErrNotOwner)
	}
	key, err := s.key(id)
	if err != nil {
		return err
	}
	d := ddbsdk.NewDelete(s.index.Table, key).
		WithCondition(expression.Name(s.ownerAttr).Equal(expression.Value(callerID)))
	if err := s.db.DeleteItem(ctx, d); err != nil {
		if ddbsdk.IsConditionFailed(err) {
			return s.conditionError(ctx, id, callerID)
		}
		return fmt.Errorf("delete %s %s: %w", s.index.EntityType, id, err)
	}
	s.written(id)
	return nil
}

// FailedID is an id whose read hit a hard error.
type FailedID struct {
	ID  string
	Err error
}

// BatchGetResult holds one slot per requested id, in request order. A nil
// slot is an id that does not exist or was not read; the latter are listed
// in Unprocessed or Failed.
type BatchGetResult[P any] struct {
	Items       []P
	Unprocessed []string
	Failed      []FailedID
}

// Done reports whether every id was read.
func (r BatchGetResult[P]) Done() bool {
	return len(r.Unprocessed) == 0 && len(r.Failed) == 0
}

// Err joins the errors of every failed id.
func (r BatchGetResult[P]) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.ID, f.Err))
	}
	return errors.Join(errs...)
}

// BatchGet reads ids, serving cached entities from the cache. The store may
// return items in any order; they are mapped back onto the requested ids.
func (s *entityStore[T, P]) BatchGet(ctx context.Context, ids []string) (BatchGetResult[P], error) {
	res := BatchGetResult[P]{Items: make([]P, len(ids))}
	found := make(map[string]P, len(ids))
	idOf := make(map[string]string, len(ids))
	var keys []table.PrimaryKey
	for _, id := range ids {
		if _, seen := found[id]; seen {
			continue
		}
		if p, ok := s.cached(id); ok {
			found[id] = p
			continue
		}
		key, err := s.key(id)
		if err != nil {
			return BatchGetResult[P]{}, err
		}
		if _, dup := idOf[key.String()]; dup {
			continue
		}
		idOf[key.String()] = id
		keys = append(keys, key)
	}

	if len(keys) > 0 {
		out, err := s.db.BatchGet(ctx, s.index.Table, keys)
		if err != nil {
			return BatchGetResult[P]{}, fmt.Errorf("batch get %s: %w", s.index.EntityType, err)
		}
		for _, item := range out.Items {
			p, err := s.decode(item)
			if err != nil {
				return BatchGetResult[P]{}, err
			}
			found[p.GetID()] = p
			if s.caching() {
				s.cache.Set(s.ns, p.GetID(), p)
			}
		}
		for _, k := range out.Unprocessed {
			res.Unprocessed = append(res.Unprocessed, idOf[k.String()])
		}
		for _, f := range out.Failed {
			res.Failed = append(res.Failed, FailedID{ID: idOf[f.Key.String()], Err: f.Err})
		}
		if !out.Done() {
			s.log.Warn("batch get incomplete",
				zap.Int("unprocessed", len(out.Unprocessed)),
				zap.Int("failed", len(out.Failed)))
		}
	}

	for i, id := range ids {
		res.Items[i] = clone(found[id])
	}
	return res, nil
}

// BatchPut writes entities without owner or concurrency checks. Every
// entity is validated before anything is written. Partial failure is
// reported in the result.
func (s *entityStore[T, P]) BatchPut(ctx context.Context, entities []P) (ddbsdk.BatchWriteResult, error) {
	for i, p := range entities {
		if p == nil {
			return ddbsdk.BatchWriteResult{}, fmt.Errorf("batch put %s: entity %d is nil", s.index.EntityType, i)
		}
		if err := larder.Validate(p); err != nil {
			return ddbsdk.BatchWriteResult{}, fmt.Errorf("batch put %s: entity %d (%s): %w", s.index.EntityType, i, p.GetID(), err)
		}
	}
	now := s.clock.Now()
	actions := make([]ddbsdk.BatchAction, 0, len(entities))
	ids := make([]string, 0, len(entities))
	for _, p := range entities {
		p.Touch(now)
		item, err := s.index.Item(p, p.IndexFields())
		if err != nil {
			return ddbsdk.BatchWriteResult{}, err
		}
		actions = append(actions, ddbsdk.NewPut(s.index.Table, item))
		ids = append(ids, p.GetID())
	}
	return s.batchWrite(ctx, actions, ids)
}

// BatchDelete removes ids without owner checks.
func (s *entityStore[T, P]) BatchDelete(ctx context.Context, ids []string) (ddbsdk.BatchWriteResult, error) {
	actions := make([]ddbsdk.BatchAction, 0, len(ids))
	for _, id := range ids {
		key, err := s.key(id)
		if err != nil {
			return ddbsdk.BatchWriteResult{}, err
		}
		actions = append(actions, ddbsdk.NewDelete(s.index.Table, key))
	}
	return s.batchWrite(ctx, actions, ids)
}

func (s *entityStore[T, P]) batchWrite(ctx context.Context, actions []ddbsdk.BatchAction, ids []string) (ddbsdk.BatchWriteResult, error) {
	res, err := s.db.BatchWrite(ctx, actions)
	if err != nil {
		return res, fmt.Errorf("batch write %s: %w", s.index.EntityType, err)
	}
	// Unprocessed and failed writes may still have been applied by an
	// earlier attempt, so every id is invalidated.
	s.written(ids...)
	if !res.Done() {
		s.log.Warn("batch write incomplete",
			zap.Int("successful", len(res.Successful)),
			zap.Int("unprocessed", len(res.Unprocessed)),
			zap.Int("failed", len(res.Failed)))
	}
	return res, nil
}
