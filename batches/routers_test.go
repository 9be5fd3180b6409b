package batches

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contact-import/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/batches"))
	return r
}

// useTempUploadsDir points the upload store at a per-test directory
func useTempUploadsDir(t *testing.T) {
	t.Helper()
	cfg := common.GetConfig()
	original := cfg.UploadsDir
	cfg.UploadsDir = t.TempDir()
	t.Cleanup(func() { cfg.UploadsDir = original })
}

func uploadCSV(t *testing.T, router *gin.Engine, csvData string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "contacts.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csvData))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/batches", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func pollUntilTerminal(t *testing.T, router *gin.Engine, batchID string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, router, http.MethodGet, "/batches/"+batchID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		status := decode(t, rec)
		state := State(status["state"].(string))
		if state.IsTerminal() {
			return status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("batch did not reach a terminal state in time")
	return nil
}

const flowCSV = "Email,Name\nann@example.com,Ann\nbob@example.com,Bob\ncleo@example.com,Cleo\n"

func TestImportFlow_EndToEnd(t *testing.T) {
	setupDB(t)
	useTempUploadsDir(t)
	router := newRouter()

	// Upload
	rec := uploadCSV(t, router, flowCSV, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode(t, rec)
	batchID := created["batch_id"].(string)
	assert.Equal(t, string(StateUploaded), created["state"])
	assert.EqualValues(t, 3, created["row_count"])

	// Running before mapping and validation is refused and changes nothing
	rec = doJSON(t, router, http.MethodPost, "/batches/"+batchID+"/run", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/batches/"+batchID, nil)
	assert.Equal(t, string(StateUploaded), decode(t, rec)["state"])

	// Suggested mapping picks up the email column
	rec = doJSON(t, router, http.MethodGet, "/batches/"+batchID+"/mapping", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	suggested := decode(t, rec)["suggested_mapping"].(map[string]interface{})
	assert.Equal(t, "Email", suggested["email"])

	// Confirm mapping and per-batch config
	rec = doJSON(t, router, http.MethodPut, "/batches/"+batchID+"/mapping", gin.H{
		"mapping": gin.H{"email": "Email", "firstname": "Name"},
		"config":  gin.H{"duplicate_policy": "create_only"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(StateMapped), decode(t, rec)["state"])

	// Validate
	rec = doJSON(t, router, http.MethodPost, "/batches/"+batchID+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(StateValidated), decode(t, rec)["state"])

	// Dispatch the run and poll to completion
	rec = doJSON(t, router, http.MethodPost, "/batches/"+batchID+"/run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	status := pollUntilTerminal(t, router, batchID)
	require.Equal(t, string(StateCompleted), status["state"])

	results := status["results"].(map[string]interface{})
	assert.EqualValues(t, 3, results["created"])
	assert.EqualValues(t, 0, results["errors"])
	assert.NotEmpty(t, status["completed_at"])

	// A second run request is refused and results stay untouched
	rec = doJSON(t, router, http.MethodPost, "/batches/"+batchID+"/run", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_started", decode(t, rec)["error"])

	rec = doJSON(t, router, http.MethodGet, "/batches/"+batchID, nil)
	after := decode(t, rec)["results"].(map[string]interface{})
	assert.EqualValues(t, 3, after["created"])
}

func TestCreateBatch_EmptyFile(t *testing.T) {
	setupDB(t)
	useTempUploadsDir(t)
	router := newRouter()

	for _, csvData := range []string{"", "Email,Name\n"} {
		rec := uploadCSV(t, router, csvData, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "empty_input", decode(t, rec)["error"])
	}
}

func TestCreateBatch_MissingFilePart(t *testing.T) {
	setupDB(t)
	router := newRouter()

	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBatch_IdempotencyKeyReplaysBatch(t *testing.T) {
	setupDB(t)
	useTempUploadsDir(t)
	router := newRouter()

	headers := map[string]string{"Idempotency-Key": "upload-abc"}

	first := uploadCSV(t, router, flowCSV, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	firstID := decode(t, first)["batch_id"].(string)

	second := uploadCSV(t, router, flowCSV, headers)
	require.Equal(t, http.StatusOK, second.Code, "replay returns the existing batch")
	assert.Equal(t, firstID, decode(t, second)["batch_id"])
}

func TestConfirmMapping_RejectsIncompleteMapping(t *testing.T) {
	setupDB(t)
	useTempUploadsDir(t)
	router := newRouter()

	rec := uploadCSV(t, router, flowCSV, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	batchID := decode(t, rec)["batch_id"].(string)

	// No email mapping: the batch must stay uploaded
	rec = doJSON(t, router, http.MethodPut, "/batches/"+batchID+"/mapping", gin.H{
		"mapping": gin.H{"firstname": "Name"},
		"config":  gin.H{"duplicate_policy": "create_only"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/batches/"+batchID, nil)
	assert.Equal(t, string(StateUploaded), decode(t, rec)["state"])
}

func TestConfirmMapping_RejectsUnknownPolicy(t *testing.T) {
	setupDB(t)
	useTempUploadsDir(t)
	router := newRouter()

	rec := uploadCSV(t, router, flowCSV, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	batchID := decode(t, rec)["batch_id"].(string)

	rec = doJSON(t, router, http.MethodPut, "/batches/"+batchID+"/mapping", gin.H{
		"mapping": gin.H{"email": "Email"},
		"config":  gin.H{"duplicate_policy": "merge"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmMapping_FrozenAfterValidation(t *testing.T) {
	setupDB(t)
	useTempUploadsDir(t)
	router := newRouter()

	rec := uploadCSV(t, router, flowCSV, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	batchID := decode(t, rec)["batch_id"].(string)

	confirm := gin.H{
		"mapping": gin.H{"email": "Email", "firstname": "Name"},
		"config":  gin.H{"duplicate_policy": "create_only"},
	}
	rec = doJSON(t, router, http.MethodPut, "/batches/"+batchID+"/mapping", confirm)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/batches/"+batchID+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Past the mapping stage the mapping is immutable
	rec = doJSON(t, router, http.MethodPut, "/batches/"+batchID+"/mapping", confirm)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/batches/"+batchID, nil)
	assert.Equal(t, string(StateValidated), decode(t, rec)["state"])
}

func TestValidate_RequiresMappedState(t *testing.T) {
	setupDB(t)
	useTempUploadsDir(t)
	router := newRouter()

	rec := uploadCSV(t, router, flowCSV, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	batchID := decode(t, rec)["batch_id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/batches/"+batchID+"/validate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetStatus_UnknownBatch(t *testing.T) {
	setupDB(t)
	router := newRouter()

	rec := doJSON(t, router, http.MethodGet, "/batches/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListBatches(t *testing.T) {
	db := setupDB(t)
	router := newRouter()

	for i := 0; i < 3; i++ {
		now := time.Now().Add(time.Duration(i) * time.Second)
		batch := &ImportBatch{
			ID:        fmt.Sprintf("list-%d", i),
			State:     StateUploaded,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, db.Create(batch).Error)
	}

	rec := doJSON(t, router, http.MethodGet, "/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 3)
	assert.Equal(t, "list-2", listed[0].BatchID, "newest first")
}
