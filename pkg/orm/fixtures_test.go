package orm

import (
	"database/sql"
	"testing"

	"atlas/pkg/dbmanager"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, statements ...string) (*sql.DB, dbmanager.Dialect) {
	t.Helper()
	mgr := dbmanager.NewDBManager()
	require.NoError(t, mgr.AddConnection("default", "sqlite", ":memory:", 1, 1))
	t.Cleanup(func() { _ = mgr.Close() })

	db, dialect, err := mgr.Lookup("default")
	require.NoError(t, err)
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db, dialect
}

var blogSchema = []string{
	`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`,
	`CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER, title TEXT)`,
	`CREATE TABLE profiles (id INTEGER PRIMARY KEY, users_id INTEGER, bio TEXT)`,
	`INSERT INTO users (id, name) VALUES (1, 'Dean'), (2, 'Sam'), (3, 'Castiel')`,
	`INSERT INTO posts (id, author_id, title) VALUES
		(10, 1, 'Impala care'), (11, 1, 'Pie'), (12, 3, 'Grace'), (13, NULL, 'Anonymous')`,
	`INSERT INTO profiles (id, users_id, bio) VALUES (100, 1, 'hunter'), (101, 3, 'angel')`,
}

type blog struct {
	users    *Mapper
	posts    *Mapper
	profiles *Mapper
}

// newBlog wires users, posts and profiles to each other.
func newBlog(t *testing.T) blog {
	db, dialect := openTestDB(t, blogSchema...)
	base := New(db, dialect)

	var b blog
	b.profiles = base.Table("profiles")
	b.posts = base.Table("posts").Relations(Relations{
		"author": func(m *Mapper) (Relation, error) {
			return m.BelongsTo(b.users, SelfKey("author_id"))
		},
	})
	b.users = base.Table("users").Relations(Relations{
		"posts": func(m *Mapper) (Relation, error) {
			return m.HasMany(b.posts, OtherKey("author_id"))
		},
		"profile": func(m *Mapper) (Relation, error) {
			return m.HasOne(b.profiles)
		},
	})
	return b
}

var nodeSchema = []string{
	`CREATE TABLE nodes (id INTEGER PRIMARY KEY, next_id INTEGER)`,
	`INSERT INTO nodes (id, next_id) VALUES
		(1, 2), (2, 3), (3, 4), (4, 5), (5, 6), (6, 7), (7, 8), (8, NULL)`,
}

func newNodes(t *testing.T) *Mapper {
	db, dialect := openTestDB(t, nodeSchema...)
	return New(db, dialect).Table("nodes").Relations(Relations{
		"next": func(m *Mapper) (Relation, error) {
			return m.BelongsTo(m, SelfKey("next_id"))
		},
	})
}

var castSchema = []string{
	`CREATE TABLE actors (id INTEGER PRIMARY KEY, name TEXT)`,
	`CREATE TABLE movies (id INTEGER PRIMARY KEY, title TEXT)`,
	`CREATE TABLE actors_movies (actors_id INTEGER, movies_id INTEGER, character_name TEXT)`,
	`INSERT INTO actors (id, name) VALUES (1, 'Harrison Ford'), (2, 'Mark Hamill'), (3, 'Nobody')`,
	`INSERT INTO movies (id, title) VALUES (1, 'Star Wars'), (2, 'Blade Runner')`,
	`INSERT INTO actors_movies (actors_id, movies_id, character_name) VALUES
		(1, 1, 'Han Solo'), (1, 2, 'Rick Deckard'), (2, 1, 'Luke Skywalker')`,
}

func newCast(t *testing.T) (actors, movies *Mapper) {
	db, dialect := openTestDB(t, castSchema...)
	base := New(db, dialect)
	movies = base.Table("movies")
	actors = base.Table("actors").Relations(Relations{
		"movies": func(m *Mapper) (Relation, error) {
			rel, err := m.BelongsToMany(movies)
			if err != nil {
				return nil, err
			}
			return rel.WithPivot("character_name"), nil
		},
	})
	return actors, movies
}
