package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"atlas/internal/config"
	"atlas/internal/schema"
	"atlas/pkg/dbmanager"
	"atlas/pkg/fastjson"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
mappers:
  users:
    relations:
      posts: {type: hasMany, target: posts, otherKey: author_id}
      profile: {type: hasOne, target: profiles}
  posts:
    relations:
      author: {type: belongsTo, target: users, selfKey: author_id}
  profiles: {}
`

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	mgr := dbmanager.NewDBManager()
	require.NoError(t, mgr.AddConnection("default", "sqlite", ":memory:", 1, 1))
	t.Cleanup(func() { _ = mgr.Close() })
	db, dialect, err := mgr.Lookup("default")
	require.NoError(t, err)

	for _, stmt := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER, title TEXT)`,
		`CREATE TABLE profiles (id INTEGER PRIMARY KEY, users_id INTEGER, bio TEXT)`,
		`INSERT INTO users (id, name) VALUES (1, 'Dean'), (2, 'Sam')`,
		`INSERT INTO posts (id, author_id, title) VALUES (10, 1, 'Impala care'), (11, 1, 'Pie'), (12, 2, 'Lore')`,
		`INSERT INTO profiles (id, users_id, bio) VALUES (100, 1, 'hunter')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	s, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	reg, err := schema.Build(s, db, dialect, nil)
	require.NoError(t, err)

	if cfg == nil {
		cfg = config.FromEnv(func(string) string { return "" })
	}
	return New(cfg, mgr, reg).Router()
}

type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Count   int         `json:"count"`
	Error   string      `json:"error"`
}

func get(t *testing.T, h http.Handler, target string, header ...string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, fastjson.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAPI(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantCount int
		check     func(t *testing.T, data interface{})
	}{
		{
			name:     "mappers",
			target:   "/api/",
			wantCode: http.StatusOK,
			check: func(t *testing.T, data interface{}) {
				assert.Equal(t, []interface{}{"posts", "profile"}, data.(map[string]interface{})["users"])
			},
		},
		{
			name:      "list with relations",
			target:    "/api/users?with=posts,profile&order=id",
			wantCode:  http.StatusOK,
			wantCount: 2,
			check: func(t *testing.T, data interface{}) {
				dean := data.([]interface{})[0].(map[string]interface{})
				assert.Len(t, dean["posts"], 2)
				assert.Equal(t, "hunter", dean["profile"].(map[string]interface{})["bio"])
			},
		},
		{
			name:      "order limit offset",
			target:    "/api/posts?order=-id&limit=1&offset=1",
			wantCode:  http.StatusOK,
			wantCount: 1,
			check: func(t *testing.T, data interface{}) {
				assert.Equal(t, "Pie", data.([]interface{})[0].(map[string]interface{})["title"])
			},
		},
		{
			name:      "filter",
			target:    "/api/posts?with=author&filter=" + "author.name%20%3D%3D%20%22Dean%22",
			wantCode:  http.StatusOK,
			wantCount: 2,
		},
		{
			name:     "find",
			target:   "/api/posts/12?with=author",
			wantCode: http.StatusOK,
			check: func(t *testing.T, data interface{}) {
				author := data.(map[string]interface{})["author"].(map[string]interface{})
				assert.Equal(t, "Sam", author["name"])
			},
		},
		{
			name:      "related plural",
			target:    "/api/users/1/posts?order=title",
			wantCode:  http.StatusOK,
			wantCount: 2,
		},
		{
			name:     "related single",
			target:   "/api/posts/10/author",
			wantCode: http.StatusOK,
			check: func(t *testing.T, data interface{}) {
				assert.Equal(t, "Dean", data.(map[string]interface{})["name"])
			},
		},
		{name: "missing record", target: "/api/users/99", wantCode: http.StatusNotFound},
		{name: "unknown mapper", target: "/api/comments", wantCode: http.StatusNotFound},
		{name: "unknown relation path", target: "/api/users/1/comments", wantCode: http.StatusNotFound},
		{name: "unknown relation spec", target: "/api/users?with=comments", wantCode: http.StatusBadRequest},
		{name: "bad limit", target: "/api/users?limit=x", wantCode: http.StatusBadRequest},
		{name: "order subquery", target: "/api/users?order=" + url.QueryEscape("(SELECT CASE WHEN (SELECT count(*) FROM profiles)>0 THEN name ELSE id END)"), wantCode: http.StatusBadRequest},
		{name: "order with spaces", target: "/api/users?order=" + url.QueryEscape("id desc"), wantCode: http.StatusBadRequest},
		{name: "order on related path", target: "/api/users/1/posts?order=" + url.QueryEscape("-title;--"), wantCode: http.StatusBadRequest},
		{
			name:      "qualified descending order",
			target:    "/api/users?order=-users.id",
			wantCode:  http.StatusOK,
			wantCount: 2,
			check: func(t *testing.T, data interface{}) {
				assert.Equal(t, "Sam", data.([]interface{})[0].(map[string]interface{})["name"])
			},
		},
		{name: "bad filter", target: "/api/users?filter=id%20%3D%3D", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, h, tt.target)
			require.Equal(t, tt.wantCode, code, body.Error)
			assert.Equal(t, tt.wantCode == http.StatusOK, body.Success)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantCount, body.Count)
			}
			if tt.check != nil {
				tt.check(t, body.Data)
			}
		})
	}
}

func TestAPI_JWT(t *testing.T) {
	cfg := config.FromEnv(func(key string) string {
		if key == "JWT_SECRET" {
			return "s3cret"
		}
		return ""
	})
	h := newTestServer(t, cfg)

	code, _ := get(t, h, "/api/users")
	assert.Equal(t, http.StatusUnauthorized, code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	code, body := get(t, h, "/api/users", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Count)

	// Health stays public.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_BlockedIP(t *testing.T) {
	cfg := config.FromEnv(func(key string) string {
		if key == "BLOCKED_IPS" {
			return "192.0.2.1"
		}
		return ""
	})
	h := newTestServer(t, cfg)

	code, body := get(t, h, "/api/users")
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, body.Success)
}
