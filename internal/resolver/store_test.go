package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	language "github.com/hanpama/entityql/internal/language"
	query "github.com/hanpama/entityql/internal/query"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
	memstore "github.com/hanpama/entityql/internal/store/memstore"
	value "github.com/hanpama/entityql/internal/value"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const socialSDL = `
type Query {
  users(first: Int, skip: Int, where: User_filter, orderBy: User_orderBy, orderDirection: OrderDirection): [User!]!
  user(id: ID!): User
  accounts(first: Int, skip: Int): [Account!]!
  posts(first: Int = 10, orderDirection: OrderDirection = asc): [Post!]!
  ok: Boolean
}

type Subscription {
  users: [User!]!
}

interface Account @entity @subgraphId(id: "QmSocial") {
  id: ID!
  name: String!
}

type User implements Account @entity @subgraphId(id: "QmSocial") {
  id: ID!
  name: String!
  best: Post
  posts(first: Int, skip: Int, orderBy: Post_orderBy, orderDirection: OrderDirection): [Post!]! @derivedFrom(field: "author")
  groups: [Group!]! @derivedFrom(field: "members")
}

type Bot implements Account @entity @subgraphId(id: "QmSocial") {
  id: ID!
  name: String!
}

type Post @entity @subgraphId(id: "QmSocial") {
  id: ID!
  title: String!
  author: User!
}

type Group @entity @subgraphId(id: "QmSocial") {
  id: ID!
  members: [User!]!
}

input User_filter {
  name: String
  name_starts_with: String
}

enum User_orderBy { id name }
enum Post_orderBy { id title }
enum OrderDirection { asc desc }
`

const socialFixtures = `
blocks:
  - number: 1
    set:
      User:
        - {id: u1, name: Alice, best: p3}
        - {id: u2, name: Bob}
      Bot:
        - {id: b1, name: Zeta}
      Post:
        - {id: p1, title: a, author: u1}
        - {id: p2, title: b, author: u1}
        - {id: p3, title: c, author: u2}
      Group:
        - {id: g1, members: [u1, u2]}
        - {id: g2, members: [u2]}
`

func socialSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(socialSDL)
	require.NoError(t, err)
	return s
}

func socialStore(t *testing.T, s *schema.Schema) *memstore.Store {
	t.Helper()
	st := memstore.New()
	require.NoError(t, memstore.LoadFixtures(s, st, strings.NewReader(socialFixtures)))
	return st
}

func newExecutionContext(t *testing.T, s *schema.Schema, src string, vars map[string]value.Value) *ExecutionContext {
	t.Helper()
	doc, err := language.ParseQuery(src)
	require.NoError(t, err)
	return &ExecutionContext{
		Context:   context.Background(),
		Schema:    s,
		Document:  doc,
		Operation: doc.Operations[0],
		Variables: vars,
		Block:     store.BlockNumberMax,
		Limits:    query.Limits{MaxFirst: 1000, MaxSkip: 5000},
		Logger:    zerolog.Nop(),
	}
}

func prefetch(t *testing.T, src string) (value.Value, []error) {
	t.Helper()
	s := socialSchema(t)
	r := NewStoreResolver(socialStore(t, s), NewPermits(1))
	ec := newExecutionContext(t, s, src, nil)
	return r.Prefetch(ec, ec.Operation.SelectionSet)
}

func obj(entries ...any) value.Object {
	out := make(value.Object, 0, len(entries)/2)
	for i := 0; i < len(entries); i += 2 {
		v, ok := entries[i+1].(value.Value)
		if !ok {
			v = value.String(entries[i+1].(string))
		}
		out = append(out, value.Entry{Key: entries[i].(string), Value: v})
	}
	return out
}

func requireValue(t *testing.T, want, got value.Value) {
	t.Helper()
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("mismatch (-want +got):\n%s", d)
	}
}

func TestPrefetch_DerivedListsAreWindowedPerParent(t *testing.T) {
	got, errs := prefetch(t, `{
  users(orderBy: name) {
    name
    posts(first: 1, orderBy: title, orderDirection: desc) { title }
  }
}`)
	require.Empty(t, errs)
	requireValue(t, obj(
		"prefetch:users", value.List{
			obj("__typename", "User", "id", "u1", "name", "Alice",
				"prefetch:posts", value.List{obj("__typename", "Post", "author", "u1", "id", "p2", "title", "b")}),
			obj("__typename", "User", "id", "u2", "name", "Bob",
				"prefetch:posts", value.List{obj("__typename", "Post", "author", "u2", "id", "p3", "title", "c")}),
		},
	), got)
}

func TestPrefetch_SingularLookupFollowsReferences(t *testing.T) {
	got, errs := prefetch(t, `{ me: user(id: "u1") { best { title } } }`)
	require.Empty(t, errs)
	requireValue(t, obj(
		"prefetch:me", obj("__typename", "User", "best", "p3", "id", "u1",
			"prefetch:best", obj("__typename", "Post", "id", "p3", "title", "c")),
	), got)
}

func TestPrefetch_MissingReferenceIsNull(t *testing.T) {
	got, errs := prefetch(t, `{ user(id: "u2") { best { title } } }`)
	require.Empty(t, errs)
	requireValue(t, obj(
		"prefetch:user", obj("__typename", "User", "id", "u2", "prefetch:best", value.Null{}),
	), got)
}

func TestPrefetch_DerivedFromListAttribute(t *testing.T) {
	got, errs := prefetch(t, `{ users { groups { id } } }`)
	require.Empty(t, errs)
	requireValue(t, obj(
		"prefetch:users", value.List{
			obj("__typename", "User", "id", "u1",
				"prefetch:groups", value.List{obj("__typename", "Group", "id", "g1", "members", value.List{value.String("u1"), value.String("u2")})}),
			obj("__typename", "User", "id", "u2",
				"prefetch:groups", value.List{
					obj("__typename", "Group", "id", "g1", "members", value.List{value.String("u1"), value.String("u2")}),
					obj("__typename", "Group", "id", "g2", "members", value.List{value.String("u2")}),
				}),
		},
	), got)
}

func TestPrefetch_InterfaceFansOut(t *testing.T) {
	got, errs := prefetch(t, `{ accounts { __typename ... on User { name } } }`)
	require.Empty(t, errs)
	requireValue(t, obj(
		"prefetch:accounts", value.List{
			obj("__typename", "Bot", "id", "b1"),
			obj("__typename", "User", "id", "u1", "name", "Alice"),
			obj("__typename", "User", "id", "u2", "name", "Bob"),
		},
	), got)
}

func TestPrefetch_FilterArguments(t *testing.T) {
	got, errs := prefetch(t, `{ users(where: {name_starts_with: "B"}) { id } }`)
	require.Empty(t, errs)
	requireValue(t, obj(
		"prefetch:users", value.List{obj("__typename", "User", "id", "u2")},
	), got)
}

func TestPrefetch_NothingToFetch(t *testing.T) {
	got, errs := prefetch(t, `{ ok }`)
	require.Nil(t, got)
	require.Empty(t, errs)
}

func TestPrefetch_ReportsEveryFailingField(t *testing.T) {
	got, errs := prefetch(t, `{ a: users(first: 0) { id } b: users(skip: 9000) { id } }`)
	require.Nil(t, got)
	require.Len(t, errs, 2)
	for _, err := range errs {
		require.ErrorIs(t, err, query.ErrRangeArguments)
	}
}

type failingStore struct{ err error }

func (s failingStore) FindEntities(context.Context, store.EntityQuery) ([]store.Entity, error) {
	return nil, s.err
}

func TestPrefetch_StoreErrors(t *testing.T) {
	s := socialSchema(t)
	boom := errors.New("connection reset")
	r := NewStoreResolver(failingStore{err: boom}, NewPermits(1))
	ec := newExecutionContext(t, s, `{ users { id } }`, nil)
	_, errs := r.Prefetch(ec, ec.Operation.SelectionSet)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], boom)
}

func resolveField(t *testing.T, r *StoreResolver, ec *ExecutionContext, prefetched value.Value, name string) (value.Value, error) {
	t.Helper()
	root := ec.RootType()
	def := root.Field(name)
	field := ec.Operation.SelectionSet[0].(*language.Field)
	args, err := ec.ArgumentValues(def, field)
	require.NoError(t, err)
	target := ec.Schema.TypeOfField(def)
	if def.Type.IsList() {
		return r.ResolveObjects(ec, prefetched, field, def, target, args)
	}
	return r.ResolveObject(ec, prefetched, field, def, target, args)
}

func TestResolveObjects_TrustsPrefetchedValues(t *testing.T) {
	s := socialSchema(t)
	r := NewStoreResolver(failingStore{err: errors.New("must not be called")}, NewPermits(1))
	ec := newExecutionContext(t, s, `{ users { id } }`, nil)
	prefetched := value.List{obj("__typename", "User", "id", "u9")}
	got, err := resolveField(t, r, ec, prefetched, "users")
	require.NoError(t, err)
	requireValue(t, prefetched, got)
}

func TestResolveObject_FetchesRootFieldsWithoutPrefetch(t *testing.T) {
	s := socialSchema(t)
	r := NewStoreResolver(socialStore(t, s), NewPermits(1))
	ec := newExecutionContext(t, s, `{ user(id: "u2") { name } }`, nil)
	got, err := resolveField(t, r, ec, nil, "user")
	require.NoError(t, err)
	requireValue(t, obj("__typename", "User", "id", "u2", "name", "Bob"), got)
}

func TestResolveObject_NestedFieldsMustBePrefetched(t *testing.T) {
	s := socialSchema(t)
	r := NewStoreResolver(socialStore(t, s), NewPermits(1))
	ec := newExecutionContext(t, s, `{ user(id: "u1") { best { id } } }`, nil)
	user := s.Type("User")
	best := user.Field("best")
	field := ec.Operation.SelectionSet[0].(*language.Field).SelectionSet[0].(*language.Field)
	_, err := r.ResolveObject(ec, nil, field, best, s.Type("Post"), query.Arguments{})
	var defect *Defect
	require.ErrorAs(t, err, &defect)
}

type recordingSource struct {
	filters []store.SubscriptionFilter
}

func (s *recordingSource) Subscribe(_ context.Context, filters []store.SubscriptionFilter) (<-chan struct{}, error) {
	s.filters = filters
	return make(chan struct{}), nil
}

func TestResolveFieldStream(t *testing.T) {
	s := socialSchema(t)
	doc, err := language.ParseQuery(`subscription { users { posts { id } } }`)
	require.NoError(t, err)
	field := doc.Operations[0].SelectionSet[0].(*language.Field)

	_, err = NewStoreResolver(memstore.New(), NewPermits(1)).ResolveFieldStream(context.Background(), s, s.GetSubscriptionType(), field)
	require.ErrorIs(t, err, query.ErrNotSupported)

	src := &recordingSource{}
	r := NewStoreResolver(memstore.New(), NewPermits(1), WithChangeSource(src))
	stream, err := r.ResolveFieldStream(context.Background(), s, s.GetSubscriptionType(), field)
	require.NoError(t, err)
	require.NotNil(t, stream)
	require.Equal(t, []store.SubscriptionFilter{
		{SubgraphID: "QmSocial", EntityType: "Post"},
		{SubgraphID: "QmSocial", EntityType: "User"},
	}, src.filters)
}
