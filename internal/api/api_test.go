package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ministore/recordstore/recordstore"
	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/storage/sqlite"
)

var testSecret = []byte("test-secret")

func rule(s string) *string { return &s }

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store, err := recordstore.Open(ctx, sqlite.New(filepath.Join(t.TempDir(), "api.db")), recordstore.DefaultStoreOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.CreateCollection(ctx, &models.Collection{
		Name: "users",
		Fields: []models.Field{
			{Name: "name", Type: models.FieldText},
			{Name: "email", Type: models.FieldText, Hidden: true},
		},
		ListRule: rule(""),
	}))
	require.NoError(t, store.CreateCollection(ctx, &models.Collection{
		Name: "posts",
		Fields: []models.Field{
			{Name: "title", Type: models.FieldText},
			{Name: "published", Type: models.FieldBool},
			{Name: "author", Type: models.FieldRelation, Options: models.FieldOptions{CollectionID: "users"}},
		},
		ListRule:   rule("published = true || author = @request.auth.id"),
		ViewRule:   rule("published = true || author = @request.auth.id"),
		UpdateRule: rule("author = @request.auth.id"),
	}))
	require.NoError(t, store.CreateCollection(ctx, &models.Collection{Name: "secrets"}))

	for _, u := range []map[string]any{
		{"id": "u1", "name": "Ann", "email": "ann@example.com"},
		{"id": "u2", "name": "Bob", "email": "bob@example.com"},
	} {
		_, err := store.InsertRecord(ctx, "users", u)
		require.NoError(t, err)
	}
	for _, p := range []map[string]any{
		{"id": "p1", "title": "hello", "published": true, "author": "u1"},
		{"id": "p2", "title": "draft", "published": false, "author": "u1"},
	} {
		_, err := store.InsertRecord(ctx, "posts", p)
		require.NoError(t, err)
	}
	_, err = store.InsertRecord(ctx, "secrets", map[string]any{"id": "s1"})
	require.NoError(t, err)

	h := NewHandler(store, AuthConfig{Enabled: true, Secret: testSecret, SuperuserCollection: "_superusers"})
	return NewEngine("dev", h)
}

func token(t *testing.T, collection, id string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, collection, id, time.Hour)
	require.NoError(t, err)
	return tok
}

type response struct {
	code int
	body map[string]any
}

func do(t *testing.T, engine *gin.Engine, method, target, tok, body string) response {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return response{code: w.Code, body: out}
}

func itemIDs(body map[string]any) []string {
	var ids []string
	for _, item := range body["items"].([]any) {
		ids = append(ids, item.(map[string]any)["id"].(string))
	}
	return ids
}

func TestHealth(t *testing.T) {
	engine := newTestEngine(t)
	resp := do(t, engine, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, "ok", resp.body["status"])
}

func TestListRecords(t *testing.T) {
	engine := newTestEngine(t)

	resp := do(t, engine, http.MethodGet, "/api/collections/posts/records?sort=id", "", "")
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, []string{"p1"}, itemIDs(resp.body))
	assert.Equal(t, float64(30), resp.body["perPage"])
	assert.Equal(t, float64(1), resp.body["totalItems"])

	resp = do(t, engine, http.MethodGet, "/api/collections/posts/records?sort=id", token(t, "users", "u1"), "")
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, []string{"p1", "p2"}, itemIDs(resp.body))

	resp = do(t, engine, http.MethodGet, "/api/collections/posts/records?perPage=1&page=2&sort=id", token(t, "users", "u1"), "")
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, []string{"p2"}, itemIDs(resp.body))
	assert.Equal(t, float64(2), resp.body["totalPages"])

	resp = do(t, engine, http.MethodGet, "/api/collections/posts/records?skipTotal=true", "", "")
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, float64(-1), resp.body["totalItems"])
}

func TestListHiddenFields(t *testing.T) {
	engine := newTestEngine(t)

	resp := do(t, engine, http.MethodGet, "/api/collections/users/records?filter=id%3D'u1'", token(t, "users", "u1"), "")
	require.Equal(t, http.StatusOK, resp.code)
	item := resp.body["items"].([]any)[0].(map[string]any)
	assert.NotContains(t, item, "email")
	assert.Equal(t, "users", item["collectionName"])

	resp = do(t, engine, http.MethodGet, "/api/collections/users/records?filter=id%3D'u1'", token(t, "_superusers", "root"), "")
	require.Equal(t, http.StatusOK, resp.code)
	item = resp.body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "ann@example.com", item["email"])
}

func TestListRecordsBadRequest(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		target string
		param  string
	}{
		{"/api/collections/posts/records?filter=title%3D", "filter"},
		{"/api/collections/posts/records?sort=a,b,c,d,e,f,g,h,i", "sort"},
		{"/api/collections/posts/records?page=abc", "page"},
		{"/api/collections/posts/records?skipTotal=maybe", "skipTotal"},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			resp := do(t, engine, http.MethodGet, tt.target, "", "")
			assert.Equal(t, http.StatusBadRequest, resp.code)
			assert.Contains(t, resp.body["data"], tt.param)
		})
	}
}

func TestViewRecord(t *testing.T) {
	engine := newTestEngine(t)

	resp := do(t, engine, http.MethodGet, "/api/collections/posts/records/p2", "", "")
	assert.Equal(t, http.StatusNotFound, resp.code)

	resp = do(t, engine, http.MethodGet, "/api/collections/posts/records/p2", token(t, "users", "u1"), "")
	assert.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, "draft", resp.body["title"])

	resp = do(t, engine, http.MethodGet, "/api/collections/secrets/records/s1", token(t, "users", "u1"), "")
	assert.Equal(t, http.StatusForbidden, resp.code)

	resp = do(t, engine, http.MethodGet, "/api/collections/missing/records/x", "", "")
	assert.Equal(t, http.StatusNotFound, resp.code)
}

func TestUpdateRecord(t *testing.T) {
	engine := newTestEngine(t)

	resp := do(t, engine, http.MethodPatch, "/api/collections/posts/records/p1", token(t, "users", "u2"), `{"title":"mine"}`)
	assert.Equal(t, http.StatusForbidden, resp.code)

	resp = do(t, engine, http.MethodPatch, "/api/collections/posts/records/p1", token(t, "users", "u1"), `{"title":"renamed"}`)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, "renamed", resp.body["title"])

	resp = do(t, engine, http.MethodPatch, "/api/collections/posts/records/p1", token(t, "users", "u1"), `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Contains(t, resp.body["data"], "bogus")

	resp = do(t, engine, http.MethodPatch, "/api/collections/posts/records/p1", token(t, "users", "u1"), `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.code)
}

func TestAuthentication(t *testing.T) {
	engine := newTestEngine(t)

	resp := do(t, engine, http.MethodGet, "/api/collections/posts/records", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.code)

	other, err := IssueToken([]byte("other"), "users", "u1", time.Hour)
	require.NoError(t, err)
	resp = do(t, engine, http.MethodGet, "/api/collections/posts/records", other, "")
	assert.Equal(t, http.StatusUnauthorized, resp.code)

	expired, err := IssueToken(testSecret, "users", "u1", -time.Minute)
	require.NoError(t, err)
	resp = do(t, engine, http.MethodGet, "/api/collections/posts/records", expired, "")
	assert.Equal(t, http.StatusUnauthorized, resp.code)

	resp = do(t, engine, http.MethodGet, "/api/collections/posts/records", token(t, "users", "ghost"), "")
	assert.Equal(t, http.StatusUnauthorized, resp.code)
}
