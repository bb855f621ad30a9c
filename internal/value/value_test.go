package value

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	language "github.com/hanpama/entityql/internal/language"
	schema "github.com/hanpama/entityql/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestString_RendersLiterals(t *testing.T) {
	v := Object{
		{Key: "name", Value: String("Ann")},
		{Key: "age", Value: Int(42)},
		{Key: "tags", Value: List{Enum("ROCK"), Null{}, nil}},
		{Key: "ok", Value: Boolean(true)},
	}
	require.Equal(t, `{name: "Ann", age: 42, tags: [ROCK, null, null], ok: true}`, v.String())
}

func TestObject_MarshalJSONKeepsOrder(t *testing.T) {
	v := Object{
		{Key: "z", Value: Int(1)},
		{Key: "a", Value: List{String("x"), nil}},
		{Key: "m", Value: Null{}},
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"z":1,"a":["x",null],"m":null}`, string(b))
	require.Equal(t, `{"z":1,"a":["x",null],"m":null}`, string(b))
}

func TestObject_SetReplacesInPlace(t *testing.T) {
	v := Object{{Key: "a", Value: Int(1)}, {Key: "b", Value: Int(2)}}
	v = v.Set("a", Int(3)).Set("c", Int(4))
	require.Equal(t, []string{"a", "b", "c"}, v.Keys())
	got, ok := v.Get("a")
	require.True(t, ok)
	require.Equal(t, Int(3), got)

	_, ok = v.TypeName()
	require.False(t, ok)
	name, ok := v.Set(TypeNameKey, String("User")).TypeName()
	require.True(t, ok)
	require.Equal(t, "User", name)
}

func TestIsNull(t *testing.T) {
	require.True(t, IsNull(nil))
	require.True(t, IsNull(Null{}))
	require.False(t, IsNull(String("")))
}

func TestFromAST(t *testing.T) {
	doc, err := language.ParseQuery(`{ users(where: {name_in: ["a", $b], age_gt: 3, score: 1.5, active: true, kind: ADMIN, gone: null}, text: $missing) }`)
	require.NoError(t, err)
	field := doc.Operations[0].SelectionSet[0].(*language.Field)

	vars := map[string]Value{"b": String("b")}
	got := FromAST(field.Arguments.ForName("where").Value, vars)
	want := Object{
		{Key: "name_in", Value: List{String("a"), String("b")}},
		{Key: "age_gt", Value: Int(3)},
		{Key: "score", Value: Float(1.5)},
		{Key: "active", Value: Boolean(true)},
		{Key: "kind", Value: Enum("ADMIN")},
		{Key: "gone", Value: Null{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FromAST mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, Null{}, FromAST(field.Arguments.ForName("text").Value, vars))
}

func TestFromJSON_TypeDirected(t *testing.T) {
	s, err := schema.BuildFromSDL(`
enum Direction { asc desc }
input Filter { name: String, ids: [ID!] }
type Query { users(dir: Direction, filter: Filter, first: Int): [String] }
`)
	require.NoError(t, err)
	field := s.GetQueryType().Field("users")

	dir, err := FromJSON("desc", field.Argument("dir").Type, s)
	require.NoError(t, err)
	require.Equal(t, Enum("desc"), dir)

	_, err = FromJSON("sideways", field.Argument("dir").Type, s)
	require.Error(t, err)

	filter, err := FromJSON(map[string]any{"name": "x", "ids": float64(7)}, field.Argument("filter").Type, s)
	require.NoError(t, err)
	want := Object{
		{Key: "ids", Value: List{String("7")}},
		{Key: "name", Value: String("x")},
	}
	if diff := cmp.Diff(want, filter); diff != "" {
		t.Fatalf("FromJSON mismatch (-want +got):\n%s", diff)
	}

	first, err := FromJSON(float64(10), field.Argument("first").Type, s)
	require.NoError(t, err)
	require.Equal(t, Int(10), first)

	_, err = FromJSON(1.5, field.Argument("first").Type, s)
	require.Error(t, err)

	_, err = FromJSON(map[string]any{"unknown": 1}, field.Argument("filter").Type, s)
	require.Error(t, err)
}

func TestFromGoToGo(t *testing.T) {
	in := map[string]any{"b": []any{1.0, "x", true}, "a": nil, "c": 2.5}
	v := FromGo(in)
	want := Object{
		{Key: "a", Value: Null{}},
		{Key: "b", Value: List{Int(1), String("x"), Boolean(true)}},
		{Key: "c", Value: Float(2.5)},
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("FromGo mismatch (-want +got):\n%s", diff)
	}
	out := ToGo(v)
	require.Equal(t, map[string]any{"a": nil, "b": []any{int64(1), "x", true}, "c": 2.5}, out)
}
