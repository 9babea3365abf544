package expr

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

var recipe = map[string]types.AttributeValue{
	"pk":       s("RECIPE#1"),
	"sk":       s("METADATA#1"),
	"authorId": s("u1"),
	"servings": n("4"),
	"tags":     &types.AttributeValueMemberSS{Value: []string{"soup", "vegan"}},
	"meta": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		"views": n("10"),
	}},
	"steps": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("chop"), s("boil")}},
}

func evalBuilt(t *testing.T, c expression.ConditionBuilder, doc map[string]types.AttributeValue) bool {
	t.Helper()
	e, err := expression.NewBuilder().WithCondition(c).Build()
	require.NoError(t, err)
	ok, err := EvalCondition(*e.Condition(), Input{Names: e.Names(), Values: e.Values()}, doc)
	require.NoError(t, err)
	return ok
}

func TestCondition_BuilderOutput(t *testing.T) {
	tests := []struct {
		name string
		cond expression.ConditionBuilder
		want bool
	}{
		{"equal", expression.Name("authorId").Equal(expression.Value("u1")), true},
		{"not equal", expression.Name("authorId").NotEqual(expression.Value("u1")), false},
		{"number compare", expression.Name("servings").GreaterThan(expression.Value(3)), true},
		{"number compare numeric not lexical", expression.Name("servings").LessThan(expression.Value(10)), true},
		{"between", expression.Name("servings").Between(expression.Value(1), expression.Value(4)), true},
		{"in", expression.Name("authorId").In(expression.Value("u2"), expression.Value("u1")), true},
		{"exists", expression.AttributeExists(expression.Name("pk")), true},
		{"not exists", expression.AttributeNotExists(expression.Name("pk")), false},
		{"begins_with", expression.Name("pk").BeginsWith("RECIPE#"), true},
		{"contains set", expression.Name("tags").Contains("vegan"), true},
		{"nested path", expression.Name("meta.views").Equal(expression.Value(10)), true},
		{"list index", expression.Name("steps[1]").Equal(expression.Value("boil")), true},
		{"size", expression.Name("steps").Size().Equal(expression.Value(2)), true},
		{
			"or with not exists",
			expression.AttributeNotExists(expression.Name("pk")).Or(expression.Name("authorId").Equal(expression.Value("u1"))),
			true,
		},
		{
			"and fails",
			expression.Name("authorId").Equal(expression.Value("u1")).And(expression.Name("servings").Equal(expression.Value(2))),
			false,
		},
		{"not", expression.Not(expression.Name("authorId").Equal(expression.Value("u2"))), true},
		{"missing attribute compares false", expression.Name("nope").Equal(expression.Value("x")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalBuilt(t, tt.cond, recipe))
		})
	}
}

func TestCondition_AbsentItem(t *testing.T) {
	assert.True(t, evalBuilt(t, expression.AttributeNotExists(expression.Name("pk")), nil))
	assert.False(t, evalBuilt(t, expression.Name("authorId").Equal(expression.Value("u1")), nil))
}

func TestCondition_Errors(t *testing.T) {
	_, err := ParseCondition("#missing = :v", Input{Values: map[string]types.AttributeValue{":v": s("x")}})
	require.Error(t, err)

	_, err = ParseCondition("a = :missing", Input{})
	require.Error(t, err)

	_, err = ParseCondition("a = ", Input{})
	require.Error(t, err)

	_, err = ParseCondition("a = :v extra", Input{Values: map[string]types.AttributeValue{":v": s("x")}})
	require.Error(t, err)
}

func TestKeyCondition(t *testing.T) {
	kc := expression.Key("gsi1pk").Equal(expression.Value("AUTHOR#u1")).
		And(expression.Key("gsi1sk").BeginsWith("RECIPE#2024"))
	e, err := expression.NewBuilder().WithKeyCondition(kc).Build()
	require.NoError(t, err)

	parsed, err := ParseKeyCondition(*e.KeyCondition(), Input{Names: e.Names(), Values: e.Values()}, "gsi1pk", "gsi1sk")
	require.NoError(t, err)
	assert.Equal(t, s("AUTHOR#u1"), parsed.Partition)
	assert.True(t, parsed.MatchSort(map[string]types.AttributeValue{"gsi1sk": s("RECIPE#2024-01-01")}))
	assert.False(t, parsed.MatchSort(map[string]types.AttributeValue{"gsi1sk": s("RECIPE#2023-01-01")}))
}

func TestKeyCondition_Between(t *testing.T) {
	kc := expression.Key("pk").Equal(expression.Value("P")).
		And(expression.Key("sk").Between(expression.Value("2024-01-01"), expression.Value("2024-01-07#\uffff")))
	e, err := expression.NewBuilder().WithKeyCondition(kc).Build()
	require.NoError(t, err)

	parsed, err := ParseKeyCondition(*e.KeyCondition(), Input{Names: e.Names(), Values: e.Values()}, "pk", "sk")
	require.NoError(t, err)
	assert.True(t, parsed.MatchSort(map[string]types.AttributeValue{"sk": s("2024-01-07#abc")}))
	assert.False(t, parsed.MatchSort(map[string]types.AttributeValue{"sk": s("2024-01-08#abc")}))
}

func TestKeyCondition_Rejects(t *testing.T) {
	in := Input{Values: map[string]types.AttributeValue{":v": s("x")}}
	_, err := ParseKeyCondition("sk = :v", in, "pk", "sk")
	require.Error(t, err, "partition equality is required")

	_, err = ParseKeyCondition("pk = :v AND title = :v", in, "pk", "sk")
	require.Error(t, err, "non-key attribute")

	pkOnly, err := ParseKeyCondition("pk = :v", in, "pk", "sk")
	require.NoError(t, err)
	assert.True(t, pkOnly.MatchSort(nil))
}

func TestApplyUpdate_Builder(t *testing.T) {
	u := expression.Set(expression.Name("title"), expression.Value("Stew")).
		Set(expression.Name("servings"), expression.Name("servings").Plus(expression.Value(2))).
		Set(expression.Name("views"), expression.IfNotExists(expression.Name("views"), expression.Value(0))).
		Remove(expression.Name("tags")).
		Add(expression.Name("meta.views"), expression.Value(5))
	e, err := expression.NewBuilder().WithUpdate(u).Build()
	require.NoError(t, err)

	out, err := ApplyUpdate(*e.Update(), Input{Names: e.Names(), Values: e.Values()}, recipe)
	require.NoError(t, err)

	assert.Equal(t, s("Stew"), out["title"])
	assert.Equal(t, n("6"), out["servings"])
	assert.Equal(t, n("0"), out["views"])
	assert.NotContains(t, out, "tags")
	assert.Equal(t, n("15"), out["meta"].(*types.AttributeValueMemberM).Value["views"])

	// the input is never mutated
	assert.Contains(t, recipe, "tags")
	assert.Equal(t, n("10"), recipe["meta"].(*types.AttributeValueMemberM).Value["views"])
}

func TestApplyUpdate_CreatesItem(t *testing.T) {
	in := Input{Values: map[string]types.AttributeValue{":v": s("x")}}
	out, err := ApplyUpdate("SET title = :v", in, nil)
	require.NoError(t, err)
	assert.Equal(t, s("x"), out["title"])
}

func TestApplyUpdate_Sets(t *testing.T) {
	in := Input{Values: map[string]types.AttributeValue{
		":add": &types.AttributeValueMemberSS{Value: []string{"quick"}},
		":del": &types.AttributeValueMemberSS{Value: []string{"soup", "vegan"}},
	}}
	out, err := ApplyUpdate("ADD tags :add", in, recipe)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"soup", "vegan", "quick"}, out["tags"].(*types.AttributeValueMemberSS).Value)

	out, err = ApplyUpdate("DELETE tags :del", in, recipe)
	require.NoError(t, err)
	assert.NotContains(t, out, "tags", "a set emptied by DELETE is removed")
}

func TestApplyUpdate_Errors(t *testing.T) {
	in := Input{Values: map[string]types.AttributeValue{":v": s("x")}}
	_, err := ApplyUpdate("SET a = :v SET b = :v", in, nil)
	require.Error(t, err, "duplicate clause")

	_, err = ApplyUpdate("UPSERT a = :v", in, nil)
	require.Error(t, err)

	_, err = ApplyUpdate("SET a = missing", in, nil)
	require.Error(t, err, "operand must exist")

	_, err = ApplyUpdate("SET a = :v + :v", in, nil)
	require.Error(t, err, "arithmetic on strings")
}

func TestEqualAndClone(t *testing.T) {
	c := Clone(recipe)
	for k, v := range recipe {
		assert.True(t, Equal(v, c[k]), k)
	}
	assert.False(t, Equal(s("1"), n("1")))
	assert.True(t, Equal(n("1.0"), n("1")))
	assert.Nil(t, Clone(nil))
}

func TestProjection(t *testing.T) {
	paths, err := ParseProjection("#a, meta.views, steps[1]", Input{Names: map[string]string{"#a": "authorId"}})
	require.NoError(t, err)

	out := Project(recipe, paths)
	assert.Equal(t, map[string]types.AttributeValue{
		"authorId": s("u1"),
		"meta":     &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{"views": n("10")}},
		"steps":    &types.AttributeValueMemberL{Value: []types.AttributeValue{s("boil")}},
	}, out)

	assert.Equal(t, recipe, Project(recipe, nil))

	_, err = ParseProjection("a,", Input{})
	require.Error(t, err)
}
