package orm

import (
	"testing"

	"atlas/pkg/keys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasMany_Of(t *testing.T) {
	users := sqliteMapper("users")
	posts := sqliteMapper("posts")

	rel, err := users.HasMany(posts, OtherKey("author_id"))
	require.NoError(t, err)
	assert.False(t, rel.IsSingle())

	one, err := rel.Of(1)
	require.NoError(t, err)
	sql, args := one.ToSQL()
	assert.Equal(t, `SELECT * FROM "posts" WHERE "posts"."author_id" = ?`, sql)
	assert.Equal(t, []interface{}{1}, args)
	assert.Equal(t, keys.Record{"author_id": 1}, one.GetDefaults())

	many, err := rel.Of([]int{1, 3})
	require.NoError(t, err)
	sql, args = many.ToSQL()
	assert.Equal(t, `SELECT * FROM "posts" WHERE "posts"."author_id" IN (?, ?)`, sql)
	assert.Equal(t, []interface{}{1, 3}, args)
	assert.Empty(t, many.GetDefaults())

	fromRecord, err := rel.Of(keys.Record{"id": 7, "name": "Bobby"})
	require.NoError(t, err)
	_, args = fromRecord.ToSQL()
	assert.Equal(t, []interface{}{7}, args)

	_, err = rel.Of()
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestRelation_DefaultKeys(t *testing.T) {
	users := sqliteMapper("users")
	posts := sqliteMapper("posts")
	actors := sqliteMapper("actors")
	movies := sqliteMapper("movies")

	belongsTo, err := posts.BelongsTo(users)
	require.NoError(t, err)
	assert.Equal(t, keys.Key{"users_id"}, belongsTo.SelfAttribute())
	assert.Equal(t, keys.Key{"id"}, belongsTo.OtherAttribute())
	assert.True(t, belongsTo.IsSingle())

	hasOne, err := users.HasOne(posts)
	require.NoError(t, err)
	assert.Equal(t, keys.Key{"id"}, hasOne.SelfAttribute())
	assert.Equal(t, keys.Key{"users_id"}, hasOne.OtherAttribute())
	assert.True(t, hasOne.IsSingle())

	btm, err := movies.BelongsToMany(actors)
	require.NoError(t, err)
	assert.Equal(t, "actors_movies", btm.Pivot().TableName())
	assert.Equal(t, keys.Key{"movies_id"}, btm.PivotSelfRef())
	assert.Equal(t, keys.Key{"actors_id"}, btm.PivotOtherRef())
	assert.Equal(t, keys.Key{"movies_id", "actors_id"}, btm.Pivot().GetIdAttribute())

	custom, err := actors.BelongsToMany(movies, PivotTable("roles"), PivotSelfKey("actor"), PivotOtherKey("movie"))
	require.NoError(t, err)
	assert.Equal(t, "roles", custom.Pivot().TableName())
	assert.Equal(t, keys.Key{"actor"}, custom.PivotSelfRef())
}

func TestRelation_IncompatibleKeys(t *testing.T) {
	users := sqliteMapper("users")
	stock := sqliteMapper("stock").IdAttribute("shop_id", "sku")

	_, err := users.HasMany(sqliteMapper("posts"), OtherKey("a", "b"))
	assert.ErrorIs(t, err, keys.ErrIncompatibleKeys)
	assert.True(t, IsConfigurationError(err))

	_, err = users.BelongsTo(stock)
	assert.NoError(t, err, "default keys follow the composite id")

	_, err = users.BelongsTo(stock, SelfKey("stock_id"))
	assert.ErrorIs(t, err, keys.ErrIncompatibleKeys)

	_, err = users.BelongsToMany(stock, PivotOtherKey("stock_id"))
	assert.ErrorIs(t, err, keys.ErrIncompatibleKeys)

	_, err = users.HasOne(nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBelongsTo_MapRelated(t *testing.T) {
	posts := sqliteMapper("posts")
	users := sqliteMapper("users")
	rel, err := posts.BelongsTo(users, SelfKey("author_id"))
	require.NoError(t, err)

	dean := keys.Record{"id": int64(1), "name": "Dean"}

	values, err := rel.MapRelated(
		keys.Targets{Records: []keys.Record{{"id": 10, "author_id": 1}}},
		[]keys.Record{dean},
	)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{dean}, values)

	values, err = rel.MapRelated(
		keys.Targets{Records: []keys.Record{
			{"id": 10, "author_id": 1},
			{"id": 11, "author_id": 2},
			{"id": 12, "author_id": nil},
		}},
		[]keys.Record{dean},
	)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, dean, values[0])
	assert.Nil(t, values[1])
	assert.Nil(t, values[2])

	values, err = rel.MapRelated(keys.Targets{Records: []keys.Record{{"author_id": 1}}, Single: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{nil}, values)
}

func TestHasMany_MapRelated(t *testing.T) {
	users := sqliteMapper("users")
	rel, err := users.HasMany(sqliteMapper("posts"), OtherKey("author_id"))
	require.NoError(t, err)

	p1 := keys.Record{"id": 10, "author_id": "1"}
	p2 := keys.Record{"id": 11, "author_id": 1}
	p3 := keys.Record{"id": 12, "author_id": 3}

	values, err := rel.MapRelated(
		keys.Targets{Records: []keys.Record{{"id": 1}, {"id": 2}, {"id": 3}}},
		[]keys.Record{p1, p2, p3},
	)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		[]keys.Record{p1, p2},
		[]keys.Record{},
		[]keys.Record{p3},
	}, values)

	values, err = rel.MapRelated(keys.Targets{Records: []keys.Record{{"id": 1}}, Single: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{[]keys.Record{}}, values)
}

func TestMapRelated_CompositeKeys(t *testing.T) {
	shops := sqliteMapper("shops").IdAttribute("region", "code")
	stock := sqliteMapper("stock")
	rel, err := shops.HasMany(stock, OtherKey("shop_region", "shop_code"))
	require.NoError(t, err)

	item := keys.Record{"sku": "x", "shop_region": "eu", "shop_code": int64(7)}
	values, err := rel.MapRelated(
		keys.Targets{Records: []keys.Record{
			{"region": "eu", "code": 7},
			{"region": "us", "code": 7},
		}},
		[]keys.Record{item},
	)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{[]keys.Record{item}, []keys.Record{}}, values)

	scoped, err := rel.Of(keys.Record{"region": "eu", "code": 7})
	require.NoError(t, err)
	assert.Equal(t, keys.Record{"shop_region": "eu", "shop_code": 7}, scoped.GetDefaults())
}

func TestBelongsToMany_Of(t *testing.T) {
	actors := sqliteMapper("actors")
	movies := sqliteMapper("movies")
	rel, err := actors.BelongsToMany(movies)
	require.NoError(t, err)

	scoped, err := rel.WithPivot("character_name").Of(keys.Record{"id": 1})
	require.NoError(t, err)
	sql, args := scoped.ToSQL()
	assert.Equal(t,
		`SELECT "movies".*, "actors_movies"."actors_id" AS "_pivot_actors_id", `+
			`"actors_movies"."character_name" AS "_pivot_character_name" FROM "movies" `+
			`INNER JOIN "actors_movies" ON "actors_movies"."movies_id" = "movies"."id" `+
			`WHERE "actors_movies"."actors_id" = ?`,
		sql)
	assert.Equal(t, []interface{}{1}, args)

	// WithPivot returned a copy.
	sql, _ = mustOf(t, rel, 1).ToSQL()
	assert.NotContains(t, sql, "character_name")

	single := rel.Singular()
	assert.True(t, single.IsSingle())
	assert.False(t, rel.IsSingle())

	sql, _ = mustOf(t, single, 1).ToSQL()
	assert.Contains(t, sql, "SELECT DISTINCT")
	assert.Contains(t, sql, "LIMIT 1")

	_, err = single.Of(1, 2)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func mustOf(t *testing.T, rel Relation, targets ...interface{}) *Mapper {
	t.Helper()
	m, err := rel.Of(targets...)
	require.NoError(t, err)
	return m
}

func TestGetRelation(t *testing.T) {
	users := sqliteMapper("users").Relations(Relations{
		"posts": func(m *Mapper) (Relation, error) {
			return m.HasMany(sqliteMapper("posts"))
		},
		"broken": func(m *Mapper) (Relation, error) {
			return nil, nil
		},
		"typed nil": func(m *Mapper) (Relation, error) {
			var rel *HasOne
			return rel, nil
		},
	})

	assert.Equal(t, []string{"broken", "posts", "typed nil"}, users.RelationNames())

	rel, err := users.Where("id", 1).GetRelation("posts")
	require.NoError(t, err)
	sql, _ := rel.Self().ToSQL()
	assert.Equal(t, `SELECT * FROM "users"`, sql, "factories receive an unscoped self")

	_, err = users.GetRelation("comments")
	assert.ErrorIs(t, err, ErrUnknownRelation)
	assert.True(t, IsConfigurationError(err))

	_, err = users.GetRelation("broken")
	assert.ErrorIs(t, err, ErrInvalidRelation)

	_, err = users.GetRelation("typed nil")
	assert.ErrorIs(t, err, ErrInvalidRelation)
}

func TestRelation_OfNilKey(t *testing.T) {
	posts := sqliteMapper("posts")
	rel, err := posts.HasMany(posts, SelfKey("author_id"), OtherKey("author_id"))
	require.NoError(t, err)

	scoped, err := rel.Of(keys.Record{"id": 13, "author_id": nil})
	require.NoError(t, err)
	sql, args := scoped.ToSQL()
	assert.Equal(t, `SELECT * FROM "posts" WHERE 1 = 0`, sql)
	assert.Empty(t, args)
	assert.Empty(t, scoped.GetDefaults())

	btm, err := sqliteMapper("actors").BelongsToMany(sqliteMapper("movies"), SelfKey("agent_id"))
	require.NoError(t, err)
	scoped = mustOf(t, btm, keys.Record{"id": 1, "agent_id": nil})
	sql, _ = scoped.ToSQL()
	assert.Contains(t, sql, "WHERE 1 = 0")
	assert.NotContains(t, sql, "IS NULL")
}
