package google_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/waste-tracker/internal/sheets"
	"github.com/JakeFAU/waste-tracker/internal/sheets/google"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.requests = append(f.requests, key)
	f.bodies[key] = string(body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = io.WriteString(w, `{"nextPageToken":"p2","files":[{"id":"a","name":"veolia_export"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"files":[{"id":"b","name":"other"}]}`)
	case r.Method == http.MethodDelete && strings.Contains(r.URL.Path, "/files/"):
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/permissions"):
		_, _ = io.WriteString(w, `{"id":"perm-1"}`)
	case r.Method == http.MethodPatch && strings.Contains(r.URL.Path, "/files/"):
		_, _ = io.WriteString(w, `{"id":"new","name":"veolia_export"}`)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/v4/spreadsheets"):
		_, _ = io.WriteString(w, `{"spreadsheetId":"new"}`)
	case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/values/"):
		_, _ = io.WriteString(w, `{"updatedRows":2}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newClient(t *testing.T) (*google.Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{bodies: make(map[string]string)}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	client, err := google.New(context.Background(),
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return client, api
}

func TestListSpreadsheetsFollowsPages(t *testing.T) {
	client, _ := newClient(t)
	files, err := client.ListSpreadsheets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []sheets.File{{ID: "a", Name: "veolia_export"}, {ID: "b", Name: "other"}}, files)
}

func TestPublishSequence(t *testing.T) {
	ctx := context.Background()
	client, api := newClient(t)

	require.NoError(t, client.DeleteSpreadsheet(ctx, "a"))
	id, err := client.CreateSpreadsheet(ctx, "veolia_export")
	require.NoError(t, err)
	assert.Equal(t, "new", id)
	require.NoError(t, client.ShareWriter(ctx, id, "ops@example.com"))
	require.NoError(t, client.WriteValues(ctx, id, [][]any{{"a", "b"}, {int64(1), true}}))
	require.NoError(t, client.RenameSpreadsheet(ctx, id, "veolia_export"))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.requests, 5)

	var perm map[string]any
	require.NoError(t, json.Unmarshal([]byte(api.bodies[api.requests[2]]), &perm))
	assert.Equal(t, "writer", perm["role"])
	assert.Equal(t, "user", perm["type"])
	assert.Equal(t, "ops@example.com", perm["emailAddress"])

	var values map[string]any
	require.NoError(t, json.Unmarshal([]byte(api.bodies[api.requests[3]]), &values))
	assert.Equal(t, []any{[]any{"a", "b"}, []any{float64(1), true}}, values["values"])
}

func TestErrorsAreWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client, err := google.New(context.Background(), option.WithEndpoint(server.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	_, err = client.ListSpreadsheets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drive files.list")

	_, err = client.CreateSpreadsheet(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spreadsheets.create")
}
