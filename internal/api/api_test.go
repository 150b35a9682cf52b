package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/pending"
)

func newTestController(t *testing.T, folders, inputImages []string) *Controller {
	t.Helper()

	root := t.TempDir()
	for _, folder := range folders {
		require.NoError(t, os.MkdirAll(filepath.Join(root, folder), 0o755))
	}

	queue, err := pending.New(root)
	require.NoError(t, err)
	for _, name := range inputImages {
		require.NoError(t, os.WriteFile(filepath.Join(queue.InputDir(), name), []byte("img-bytes"), 0o644))
	}

	settings := &conf.Settings{Version: "test"}
	settings.WebServer.SessionTTL = 60
	settings.Training.OnCommit = conf.OnCommitFull

	c, err := New(echo.New(), settings, queue, nil, nil)
	require.NoError(t, err)
	return c
}

func startSession(t *testing.T, c *Controller) string {
	t.Helper()
	rec := doRequest(c, http.MethodPost, "/api/v2/session", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func doRequest(c *Controller, method, path, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(HeaderSessionToken, token)
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	c := newTestController(t, nil, nil)

	rec := doRequest(c, http.MethodGet, "/api/v2/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestSessionGate(t *testing.T) {
	c := newTestController(t, nil, nil)

	token := startSession(t, c)

	// Second caller is rejected while the session is alive.
	rec := doRequest(c, http.MethodPost, "/api/v2/session", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(c, http.MethodPost, "/api/v2/session/heartbeat", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(c, http.MethodPost, "/api/v2/session/heartbeat", "", "bogus")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(c, http.MethodDelete, "/api/v2/session", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Released sessions free the gate.
	rec = doRequest(c, http.MethodPost, "/api/v2/session", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGatedRoutesRequireSession(t *testing.T) {
	c := newTestController(t, []string{"cats"}, []string{"a.png"})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v2/folders"},
		{http.MethodGet, "/api/v2/images/next"},
		{http.MethodPost, "/api/v2/queue"},
		{http.MethodGet, "/api/v2/queue"},
	} {
		rec := doRequest(c, route.method, route.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestNextImageEndpoint(t *testing.T) {
	c := newTestController(t, []string{"cats"}, []string{"b.png", "a.png"})
	token := startSession(t, c)

	rec := doRequest(c, http.MethodGet, "/api/v2/images/next", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a.png", body["image_file"])
	assert.Equal(t, "image/png", body["mime_type"])
	assert.NotEmpty(t, body["image_data"])
}

func TestNextImageEmptyInput(t *testing.T) {
	c := newTestController(t, nil, nil)
	token := startSession(t, c)

	rec := doRequest(c, http.MethodGet, "/api/v2/images/next", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.NotEmpty(t, errResp.CorrelationID)
}

func TestFolderEndpoints(t *testing.T) {
	c := newTestController(t, []string{"dogs"}, nil)
	token := startSession(t, c)
	require.NoError(t, os.WriteFile(filepath.Join(c.Queue.WorkingDir(), "dogs", "x.png"), []byte("x"), 0o644))

	rec := doRequest(c, http.MethodPost, "/api/v2/folders", `{"folder_name":"birds"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(c, http.MethodGet, "/api/v2/folders", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Folders []pending.FolderRecord `json:"folders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	names := make([]string, 0, len(listing.Folders))
	for _, record := range listing.Folders {
		names = append(names, record.Name)
	}
	assert.ElementsMatch(t, []string{"birds", "dogs", "input", "trash"}, names)

	// A non-empty folder cannot be deleted.
	rec = doRequest(c, http.MethodDelete, "/api/v2/folders/dogs", "", token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(c, http.MethodDelete, "/api/v2/folders/birds", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(c, http.MethodDelete, "/api/v2/folders/input", "", token)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueLifecycle(t *testing.T) {
	c := newTestController(t, []string{"cats", "dogs"}, []string{"a.png", "b.png", "c.png"})
	token := startSession(t, c)

	for _, stage := range []string{
		`{"image":"a.png","target_folder":"cats"}`,
		`{"image":"b.png","target_folder":"dogs"}`,
		`{"image":"c.png","target_folder":"cats"}`,
	} {
		rec := doRequest(c, http.MethodPost, "/api/v2/queue", stage, token)
		require.Equal(t, http.StatusOK, rec.Code, stage)
	}

	// Double-staging the same image conflicts.
	rec := doRequest(c, http.MethodPost, "/api/v2/queue", `{"image":"a.png","target_folder":"dogs"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(c, http.MethodGet, "/api/v2/queue", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Actions      []QueueEntry `json:"actions"`
		PendingCount int          `json:"pending_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Equal(t, 3, listing.PendingCount)
	assert.Equal(t, "a.png", listing.Actions[0].Image)
	assert.NotEmpty(t, listing.Actions[0].ImageData)

	// Undo removes the most recent staging.
	rec = doRequest(c, http.MethodPost, "/api/v2/queue/undo", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var undone map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &undone))
	assert.Equal(t, "c.png", undone["image"])

	rec = doRequest(c, http.MethodPost, "/api/v2/queue/commit", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var commit CommitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commit))
	require.Len(t, commit.Items, 2)
	assert.Equal(t, "a.png", commit.Items[0].ImageName)
	assert.Equal(t, "b.png", commit.Items[1].ImageName)
	assert.Equal(t, 2, commit.Moved)
	assert.Equal(t, "skipped", commit.Retrain.Status)

	assert.FileExists(t, filepath.Join(c.Queue.WorkingDir(), "cats", "a.png"))
	assert.FileExists(t, filepath.Join(c.Queue.WorkingDir(), "dogs", "b.png"))
}

func TestUndoEmptyQueueReturns400(t *testing.T) {
	c := newTestController(t, nil, nil)
	token := startSession(t, c)

	rec := doRequest(c, http.MethodPost, "/api/v2/queue/undo", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyWithoutClassifier(t *testing.T) {
	c := newTestController(t, []string{"cats"}, []string{"a.png"})
	token := startSession(t, c)

	rec := doRequest(c, http.MethodPost, "/api/v2/classify", `{"image":"a.png"}`, token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(c, http.MethodPost, "/api/v2/model/init", "", token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusForError(t *testing.T) {
	c := newTestController(t, []string{"cats"}, nil)
	token := startSession(t, c)

	// Unknown image on stage maps not-found to 404.
	rec := doRequest(c, http.MethodPost, "/api/v2/queue", `{"image":"ghost.png","target_folder":"cats"}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed stage request maps validation to 400.
	rec = doRequest(c, http.MethodPost, "/api/v2/queue", `{"image":"","target_folder":""}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
