package ddbsdk

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/acksell/larder/dynamodb/ddbstore"
	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTable = table.TableDefinition{
	Name: "test-table",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
	},
	GSIs: []table.GSIDefinition{
		{
			Name: "GSI1",
			KeyDefinitions: table.PrimaryKeyDefinition{
				PartitionKey: table.KeyDef{Name: "gsi1pk", Kind: table.KeyKindS},
				SortKey:      table.KeyDef{Name: "gsi1sk", Kind: table.KeyKindS},
			},
		},
	},
}

type testDoc struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty"`
	Title  string `dynamodbav:"title"`
	Owner  string `dynamodbav:"owner,omitempty"`
	Count  int    `dynamodbav:"count"`
}

func docItem(t *testing.T, d testDoc) Item {
	t.Helper()
	item, err := attributevalue.MarshalMap(d)
	require.NoError(t, err)
	return item
}

func newTestStore(t *testing.T, opts ddbstore.StoreOptions) *ddbstore.Store {
	t.Helper()
	opts.InMemory = true
	store, err := ddbstore.New(opts, testTable)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// noBackoff keeps retry tests fast.
func noBackoff(int) time.Duration { return 0 }

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithCustomBackoff(noBackoff), WithBatchConfig(BatchConfig{ChunkDelay: -1})}, opts...)
	return New(newTestStore(t, ddbstore.StoreOptions{}), opts...)
}

func TestClient_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	key := testTable.NewKey("DOC#1", "META")

	got, err := c.GetItem(ctx, GetItemRequest{Table: testTable, Key: key})
	require.NoError(t, err)
	assert.Nil(t, got, "missing item is nil without error")

	require.NoError(t, c.PutItem(ctx, NewPut(testTable, docItem(t, testDoc{PK: "DOC#1", SK: "META", Title: "soup", Count: 2}))))

	got, err = c.GetItem(ctx, GetItemRequest{Table: testTable, Key: key})
	require.NoError(t, err)
	var d testDoc
	require.NoError(t, attributevalue.UnmarshalMap(got, &d))
	assert.Equal(t, "soup", d.Title)
	assert.Equal(t, 2, d.Count)

	got, err = c.GetItem(ctx, GetItemRequest{Table: testTable, Key: key, Projection: []string{"title"}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "title")

	require.NoError(t, c.DeleteItem(ctx, NewDelete(testTable, key)))
	got, err = c.GetItem(ctx, GetItemRequest{Table: testTable, Key: key})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_ConditionFailed(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	item := docItem(t, testDoc{PK: "DOC#1", SK: "META", Title: "soup", Owner: "alice"})

	notExists := expression.AttributeNotExists(expression.Name("pk"))
	require.NoError(t, c.PutItem(ctx, NewPut(testTable, item).WithCondition(notExists)))

	err := c.PutItem(ctx, NewPut(testTable, item).WithCondition(notExists))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConditionFailed)
	assert.True(t, IsConditionFailed(err))

	key := testTable.NewKey("DOC#1", "META")
	ownedByBob := expression.Name("owner").Equal(expression.Value("bob"))
	err = c.DeleteItem(ctx, NewDelete(testTable, key).WithCondition(ownedByBob))
	assert.ErrorIs(t, err, ErrConditionFailed)

	_, err = c.UpdateItem(ctx, NewUpdate(testTable, key).Set("title", "stew").WithCondition(ownedByBob))
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestClient_UpdateItem(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	require.NoError(t, c.PutItem(ctx, NewPut(testTable, docItem(t, testDoc{
		PK: "DOC#1", SK: "META", Title: "soup", GSI1PK: "OWNER#alice", GSI1SK: "1",
	}))))
	key := testTable.NewKey("DOC#1", "META")

	out, err := c.UpdateItem(ctx, NewUpdate(testTable, key).
		Set("title", "stew").
		Set("count", 3).
		Remove("gsi1pk").
		Remove("gsi1sk"))
	require.NoError(t, err)
	var d testDoc
	require.NoError(t, attributevalue.UnmarshalMap(out, &d))
	assert.Equal(t, "stew", d.Title)
	assert.Equal(t, 3, d.Count)
	assert.Empty(t, d.GSI1PK)

	items, err := c.NewQuery(testTable, NewKeyCondition("OWNER#alice", nil)).WithGSI("GSI1").QueryAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items, "removing the index attributes removes the item from the index")

	t.Run("invalid updates", func(t *testing.T) {
		_, err := c.UpdateItem(ctx, NewUpdate(testTable, key))
		assert.Error(t, err)
		_, err = c.UpdateItem(ctx, NewUpdate(testTable, key).Set("title", "a").Remove("title"))
		assert.Error(t, err)
	})
}

func TestClient_Query(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	for i := 0; i < 7; i++ {
		require.NoError(t, c.PutItem(ctx, NewPut(testTable, docItem(t, testDoc{
			PK:     fmt.Sprintf("DOC#%d", i),
			SK:     "META",
			GSI1PK: "OWNER#alice",
			GSI1SK: fmt.Sprintf("2024-01-0%d", i+1),
			Title:  fmt.Sprintf("doc %d", i),
		}))))
	}

	t.Run("pages with cursor", func(t *testing.T) {
		q := c.NewQuery(testTable, NewKeyCondition("OWNER#alice", nil)).WithGSI("GSI1").WithPageSize(3)
		var titles []string
		pages := 0
		for {
			res, err := q.Next(ctx)
			require.NoError(t, err)
			pages++
			for _, it := range res.Items {
				var d testDoc
				require.NoError(t, attributevalue.UnmarshalMap(it, &d))
				titles = append(titles, d.Title)
			}
			if res.IsDone {
				assert.Empty(t, res.Cursor)
				break
			}
			assert.NotEmpty(t, res.Cursor)
		}
		assert.Equal(t, 3, pages)
		assert.Equal(t, []string{"doc 0", "doc 1", "doc 2", "doc 3", "doc 4", "doc 5", "doc 6"}, titles)
	})

	t.Run("resume from cursor descending", func(t *testing.T) {
		first, err := c.NewQuery(testTable, NewKeyCondition("OWNER#alice", nil)).
			WithGSI("GSI1").WithDescending().WithPageSize(2).Next(ctx)
		require.NoError(t, err)
		require.Len(t, first.Items, 2)

		q, err := c.NewQuery(testTable, NewKeyCondition("OWNER#alice", nil)).
			WithGSI("GSI1").WithDescending().WithPageSize(2).WithCursor(first.Cursor)
		require.NoError(t, err)
		second, err := q.Next(ctx)
		require.NoError(t, err)
		require.Len(t, second.Items, 2)
		var d testDoc
		require.NoError(t, attributevalue.UnmarshalMap(second.Items[0], &d))
		assert.Equal(t, "doc 4", d.Title)
	})

	t.Run("sort key strategies", func(t *testing.T) {
		items, err := c.NewQuery(testTable, NewKeyCondition("OWNER#alice", Between("2024-01-02", "2024-01-04"))).
			WithGSI("GSI1").QueryAll(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 3)

		items, err = c.NewQuery(testTable, NewKeyCondition("OWNER#alice", GreaterThanOrEqual("2024-01-06"))).
			WithGSI("GSI1").QueryAll(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("filter", func(t *testing.T) {
		items, err := c.NewQuery(testTable, NewKeyCondition("OWNER#alice", nil)).
			WithGSI("GSI1").
			WithFilter(expression.Name("title").Contains("5")).
			QueryAll(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("unknown index", func(t *testing.T) {
		_, err := c.NewQuery(testTable, NewKeyCondition("x", nil)).WithGSI("nope").Next(ctx)
		assert.Error(t, err)
	})

	t.Run("bad cursor", func(t *testing.T) {
		_, err := c.NewQuery(testTable, NewKeyCondition("x", nil)).WithCursor("!!not base64")
		assert.Error(t, err)
	})
}

func TestCursorRoundTrip(t *testing.T) {
	key := Item{
		"pk": &types.AttributeValueMemberS{Value: "DOC#1"},
		"sk": &types.AttributeValueMemberS{Value: "META"},
	}
	cursor, err := EncodeCursor(key)
	require.NoError(t, err)
	back, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, key, back)

	empty, err := EncodeCursor(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	nilKey, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, nilKey)
}

// failingClient fails every call with err while failing is set.
type failingClient struct {
	AWSDynamoClientV2
	err     error
	failing bool
	calls   int
}

func (f *failingClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.calls++
	if f.failing {
		return nil, f.err
	}
	return f.AWSDynamoClientV2.GetItem(ctx, in, opts...)
}

func TestClient_Breaker(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ddbstore.StoreOptions{})
	fc := &failingClient{AWSDynamoClientV2: store, err: errors.New("connection reset"), failing: true}
	m := &recordingMetrics{}
	c := New(fc, WithMetrics(m), WithBreaker(BreakerSettings{
		ConsecutiveFailures: 2,
		Timeout:             time.Hour,
	}))
	key := testTable.NewKey("DOC#1", "META")

	for i := 0; i < 2; i++ {
		_, err := c.GetItem(ctx, GetItemRequest{Table: testTable, Key: key})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrStoreUnavailable)
	}
	fc.failing = false
	_, err := c.GetItem(ctx, GetItemRequest{Table: testTable, Key: key})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 2, fc.calls, "open breaker does not reach the store")
	assert.Equal(t, []string{"closed->open"}, m.transitions)
}

func TestClient_BreakerIgnoresConditionFailures(t *testing.T) {
	ctx := context.Background()
	c := New(newTestStore(t, ddbstore.StoreOptions{}), WithBreaker(BreakerSettings{ConsecutiveFailures: 1, Timeout: time.Hour}))
	item := docItem(t, testDoc{PK: "DOC#1", SK: "META"})
	notExists := expression.AttributeNotExists(expression.Name("pk"))
	require.NoError(t, c.PutItem(ctx, NewPut(testTable, item).WithCondition(notExists)))
	for i := 0; i < 3; i++ {
		err := c.PutItem(ctx, NewPut(testTable, item).WithCondition(notExists))
		assert.ErrorIs(t, err, ErrConditionFailed)
	}
	_, err := c.GetItem(ctx, GetItemRequest{Table: testTable, Key: testTable.NewKey("DOC#1", "META")})
	assert.NoError(t, err)
}

func TestBackoff(t *testing.T) {
	b := DoublingBackoff(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, b(1))
	assert.Equal(t, 200*time.Millisecond, b(2))
	assert.Equal(t, 400*time.Millisecond, b(3))
	assert.Zero(t, b(0))

	e := ExponentialBackoff(10*time.Millisecond, 2, 50*time.Millisecond)
	for attempt := 1; attempt < 10; attempt++ {
		d := e(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 50*time.Millisecond)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

type recordingMetrics struct {
	items       map[string]int
	retries     int
	transitions []string
}

func (m *recordingMetrics) BatchItems(op, outcome string, n int) {
	if m.items == nil {
		m.items = make(map[string]int)
	}
	m.items[op+"/"+outcome] += n
}

func (m *recordingMetrics) BatchRetry(string) { m.retries++ }

func (m *recordingMetrics) BreakerStateChange(_, from, to string) {
	m.transitions = append(m.transitions, from+"->"+to)
}
