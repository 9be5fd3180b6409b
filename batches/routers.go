package batches

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contact-import/common"
	"contact-import/mapping"
	"contact-import/parsers"
	"contact-import/reconcile"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// RegisterRoutes wires the batch stage operations
func RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", CreateBatch)
	r.GET("", ListBatches)
	r.GET("/:batch_id", GetStatus)
	r.GET("/:batch_id/mapping", ProposeMapping)
	r.PUT("/:batch_id/mapping", ConfirmMapping)
	r.POST("/:batch_id/validate", ValidateBatchHandler)
	r.POST("/:batch_id/run", RunBatch)
}

// CreateBatchResponse is returned when a batch is created or replayed
type CreateBatchResponse struct {
	BatchID  string   `json:"batch_id"`
	State    State    `json:"state"`
	Headers  []string `json:"headers"`
	RowCount int      `json:"row_count"`
}

// ConfirmMappingRequest carries the user-confirmed mapping and batch config
type ConfirmMappingRequest struct {
	Mapping map[string]string `json:"mapping" binding:"required"`
	Config  ConfigPayload     `json:"config" binding:"required"`
}

// ConfigPayload is the immutable per-batch configuration
type ConfigPayload struct {
	DuplicatePolicy string `json:"duplicate_policy" binding:"required"`
	DefaultCountry  string `json:"default_country"`
	ValueSeparator  string `json:"value_separator"`
	StrictMode      bool   `json:"strict_mode"`
}

// StatusResponse is the pollable batch snapshot
type StatusResponse struct {
	BatchID     string     `json:"batch_id"`
	State       State      `json:"state"`
	RowCount    int        `json:"row_count"`
	Results     Results    `json:"results"`
	Errors      []RowError `json:"errors,omitempty"`
	Failure     string     `json:"failure_reason,omitempty"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	CompletedAt *string    `json:"completed_at,omitempty"`
}

func statusResponse(batch *ImportBatch) StatusResponse {
	resp := StatusResponse{
		BatchID:   batch.ID,
		State:     batch.State,
		RowCount:  batch.RowCount,
		Results:   batch.Results(),
		Errors:    batch.RowErrors(),
		Failure:   batch.FailureReason,
		CreatedAt: batch.CreatedAt.Format(time.RFC3339),
		UpdatedAt: batch.UpdatedAt.Format(time.RFC3339),
	}
	if batch.CompletedAt != nil {
		completed := batch.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

// CreateBatch godoc
// @Summary Upload a contact CSV and create an import batch
// @Tags batches
// @Accept multipart/form-data
// @Produce json
// @Param Idempotency-Key header string false "Replay protection for repeated uploads"
// @Param file formData file true "CSV file to import"
// @Success 201 {object} CreateBatchResponse "Batch created"
// @Success 200 {object} CreateBatchResponse "Existing batch returned (idempotency)"
// @Failure 400 {object} map[string]string "Bad request"
// @Router /batches [post]
func CreateBatch(c *gin.Context) {
	db := common.GetDB()
	cfg := common.GetConfig()

	// Replay an existing batch when the client retries the same upload
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		var existing ImportBatch
		if err := db.Where("idempotency_key = ?", key).First(&existing).Error; err == nil {
			c.JSON(http.StatusOK, CreateBatchResponse{
				BatchID:  existing.ID,
				State:    existing.State,
				Headers:  existing.Headers(),
				RowCount: existing.RowCount,
			})
			return
		}
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if header.Size > cfg.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds maximum allowed size"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(file, cfg.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	if int64(len(raw)) > cfg.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds maximum allowed size"})
		return
	}

	doc, err := parsers.Parse(raw)
	if err != nil {
		if errors.Is(err, parsers.ErrEmptyInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_input", "message": "file has no header row or no data rows"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Keep the raw file; the run stage re-reads it from disk
	filePath, err := saveUpload(cfg.UploadsDir, header.Filename, raw)
	if err != nil {
		common.Log().Errorw("failed to save upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}

	now := time.Now()
	batch := ImportBatch{
		ID:             uuid.New().String(),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		State:          StateUploaded,
		FileName:       header.Filename,
		FilePath:       filePath,
		RowCount:       doc.RowCount(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	batch.SetHeaders(doc.Headers)

	if err := db.Create(&batch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create import batch"})
		return
	}

	common.Log().Infow("batch created",
		"batch_id", batch.ID, "file", batch.FileName, "rows", batch.RowCount)

	c.Set("rows_processed", batch.RowCount)
	c.JSON(http.StatusCreated, CreateBatchResponse{
		BatchID:  batch.ID,
		State:    batch.State,
		Headers:  doc.Headers,
		RowCount: doc.RowCount(),
	})
}

// saveUpload writes the raw bytes under the uploads directory with a
// timestamped, slugified name
func saveUpload(dir, originalName string, raw []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	if base == "" {
		base = "upload"
	}
	fileName := fmt.Sprintf("%s_%s_%s.csv",
		time.Now().Format("20060102_150405"), uuid.New().String()[:8], slug.Make(base))
	filePath := filepath.Join(dir, fileName)

	if err := os.WriteFile(filePath, raw, 0644); err != nil {
		return "", err
	}
	return filePath, nil
}

// ProposeMapping godoc
// @Summary Suggest a column mapping for an uploaded batch
// @Tags batches
// @Produce json
// @Param batch_id path string true "Batch ID"
// @Success 200 {object} map[string]interface{} "Suggested mapping and field specs"
// @Failure 404 {object} map[string]string "Batch not found"
// @Router /batches/{batch_id}/mapping [get]
func ProposeMapping(c *gin.Context) {
	batch, ok := loadBatch(c)
	if !ok {
		return
	}

	specs := mapping.ContactFields()
	suggested := mapping.AutoDetect(batch.Headers(), specs)

	c.JSON(http.StatusOK, gin.H{
		"batch_id":          batch.ID,
		"suggested_mapping": suggested,
		"fields":            specs,
		"policies":          reconcile.Policies(),
	})
}

// ConfirmMapping godoc
// @Summary Confirm the column mapping and batch configuration
// @Tags batches
// @Accept json
// @Produce json
// @Param batch_id path string true "Batch ID"
// @Success 200 {object} StatusResponse "Batch advanced to mapped"
// @Failure 409 {object} map[string]string "Batch is past the mapping stage"
// @Failure 422 {object} map[string]interface{} "Mapping rejected"
// @Router /batches/{batch_id}/mapping [put]
func ConfirmMapping(c *gin.Context) {
	db := common.GetDB()

	batch, ok := loadBatch(c)
	if !ok {
		return
	}

	// Re-confirming while still mapped is allowed; anything later is not
	if batch.State != StateMapped && !batch.State.CanTransitionTo(StateMapped) {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("batch is %s, mapping is frozen", batch.State)})
		return
	}

	var req ConfirmMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if vErr := common.ValidateEnum("duplicate_policy", req.Config.DuplicatePolicy, reconcile.Policies()); vErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message})
		return
	}

	specs := mapping.ContactFields()
	if issues := mapping.Mapping(req.Mapping).Validate(specs, batch.Headers()); len(issues) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "mapping_incomplete", "issues": issues})
		return
	}

	batch.SetMapping(req.Mapping)
	batch.SetConfig(reconcile.Config{
		Policy:         reconcile.Policy(req.Config.DuplicatePolicy),
		DefaultCountry: req.Config.DefaultCountry,
		ValueSeparator: req.Config.ValueSeparator,
		StrictMode:     req.Config.StrictMode,
	})
	batch.State = StateMapped
	batch.UpdatedAt = time.Now()

	if err := db.Save(batch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save mapping"})
		return
	}

	c.JSON(http.StatusOK, statusResponse(batch))
}

// ValidateBatchHandler godoc
// @Summary Validate a mapped batch
// @Tags batches
// @Produce json
// @Param batch_id path string true "Batch ID"
// @Success 200 {object} ValidationReport "Validation report"
// @Failure 409 {object} map[string]string "Batch is not mapped"
// @Router /batches/{batch_id}/validate [post]
func ValidateBatchHandler(c *gin.Context) {
	db := common.GetDB()
	cfg := common.GetConfig()

	batch, ok := loadBatch(c)
	if !ok {
		return
	}

	// Re-validating a validated batch is idempotent; earlier or later
	// stages are rejected without touching state
	if batch.State != StateValidated && !batch.State.CanTransitionTo(StateValidated) {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("batch is %s, expected mapped", batch.State)})
		return
	}

	doc, err := loadDocument(batch)
	if err != nil {
		common.Log().Errorw("failed to reload upload for validation", "batch_id", batch.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read uploaded file"})
		return
	}

	report := ValidateBatch(batch, doc, cfg.SampleSize, cfg.WarnThreshold)

	if batch.State.CanTransitionTo(StateValidated) && !report.Blocks(batch.StrictMode) {
		batch.State = StateValidated
		batch.UpdatedAt = time.Now()
		if err := db.Save(batch).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save batch"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": batch.ID,
		"state":    batch.State,
		"report":   report,
	})
}

// RunBatch godoc
// @Summary Start the background run for a validated batch
// @Tags batches
// @Produce json
// @Param batch_id path string true "Batch ID"
// @Success 202 {object} map[string]interface{} "Run dispatched"
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 409 {object} map[string]string "Batch not validated or already started"
// @Router /batches/{batch_id}/run [post]
func RunBatch(c *gin.Context) {
	db := common.GetDB()
	batchID := c.Param("batch_id")

	state, err := dispatchRun(db, batchID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyStarted):
			c.JSON(http.StatusConflict, gin.H{"error": "already_started", "state": state})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "import batch not found"})
		case state == "":
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch run"})
		default:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		}
		return
	}

	go ProcessBatch(batchID)

	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "batch_id": batchID, "state": state})
}

// dispatchRun performs the exactly-once state swap for a run request. The
// compare-and-swap on state means only the request that wins the update
// starts the runner; every loser learns why from the returned error.
func dispatchRun(db *gorm.DB, batchID string) (State, error) {
	result := db.Model(&ImportBatch{}).
		Where("id = ? AND state = ?", batchID, StateValidated).
		Updates(map[string]interface{}{"state": StateRunning, "updated_at": time.Now()})
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected > 0 {
		return StateRunning, nil
	}

	var batch ImportBatch
	if err := db.Where("id = ?", batchID).First(&batch).Error; err != nil {
		return "", err
	}
	if batch.State == StateRunning || batch.State.IsTerminal() {
		return batch.State, ErrAlreadyStarted
	}
	return batch.State, fmt.Errorf("batch is %s, expected validated", batch.State)
}

// GetStatus godoc
// @Summary Poll the status of an import batch
// @Tags batches
// @Produce json
// @Param batch_id path string true "Batch ID"
// @Success 200 {object} StatusResponse "Batch snapshot"
// @Failure 404 {object} map[string]string "Batch not found"
// @Router /batches/{batch_id} [get]
func GetStatus(c *gin.Context) {
	batch, ok := loadBatch(c)
	if !ok {
		return
	}

	c.Set("rows_processed", batch.Results().Total())
	c.JSON(http.StatusOK, statusResponse(batch))
}

// ListBatches godoc
// @Summary List recent import batches
// @Tags batches
// @Produce json
// @Success 200 {array} StatusResponse "Recent batches, newest first"
// @Router /batches [get]
func ListBatches(c *gin.Context) {
	db := common.GetDB()

	var recent []ImportBatch
	if err := db.Order("created_at DESC").Limit(50).Find(&recent).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list batches"})
		return
	}

	out := make([]StatusResponse, 0, len(recent))
	for i := range recent {
		out = append(out, statusResponse(&recent[i]))
	}
	c.JSON(http.StatusOK, out)
}

// loadBatch fetches the batch from the path parameter, replying 404 itself
// when missing
func loadBatch(c *gin.Context) (*ImportBatch, bool) {
	db := common.GetDB()

	var batch ImportBatch
	if err := db.Where("id = ?", c.Param("batch_id")).First(&batch).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "import batch not found"})
		return nil, false
	}
	return &batch, true
}
