package api

import (
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/pixsort/pixsort-go/internal/classifier"
	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/imaging"
	"github.com/pixsort/pixsort-go/internal/pending"
)

// initQueueRoutes registers the pending action queue endpoints.
func (c *Controller) initQueueRoutes() {
	c.Group.POST("/queue", c.StageAction, c.requireSession)
	c.Group.POST("/queue/undo", c.UndoAction, c.requireSession)
	c.Group.GET("/queue", c.ListQueue, c.requireSession)
	c.Group.POST("/queue/commit", c.CommitQueue, c.requireSession)
}

// StageRequest is the body for staging a move.
type StageRequest struct {
	Image  string `json:"image"`
	Target string `json:"target_folder"`
}

// QueueEntry is one pending action with its image preview.
type QueueEntry struct {
	Image     string `json:"image"`
	Target    string `json:"target_folder"`
	ImageData string `json:"image_data,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

// RetrainStatus reports the outcome of the post-commit model refresh.
type RetrainStatus struct {
	Status string `json:"status"` // "ok", "skipped" or "error"
	Mode   string `json:"mode,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CommitResponse combines the per-item move outcomes with the retrain
// result. Moves that already happened are never rolled back: a retrain
// failure is reported here, not as a request failure.
type CommitResponse struct {
	Items   []pending.CommitItem `json:"items"`
	Moved   int                  `json:"moved"`
	Retrain RetrainStatus        `json:"retrain"`
}

// StageAction adds a pending move for an input image.
func (c *Controller) StageAction(ctx echo.Context) error {
	var req StageRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.Image == "" || req.Target == "" {
		return c.HandleError(ctx,
			errors.ValidationError("image and target_folder are required"),
			"image and target_folder are required", 0)
	}

	if err := c.Queue.Stage(req.Image, req.Target); err != nil {
		return c.HandleError(ctx, err, "failed to stage action", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"message":       "pending action added",
		"image":         req.Image,
		"target_folder": req.Target,
		"pending_count": c.Queue.Len(),
	})
}

// UndoAction removes the most recently staged move.
func (c *Controller) UndoAction(ctx echo.Context) error {
	action, err := c.Queue.Undo()
	if err != nil {
		return c.HandleError(ctx, err, "nothing to undo", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"message":       "pending action removed",
		"image":         action.ImageName,
		"target_folder": action.Target,
		"pending_count": c.Queue.Len(),
	})
}

// ListQueue returns the pending actions in staging order, each with a
// cached base64 preview of the image.
func (c *Controller) ListQueue(ctx echo.Context) error {
	actions := c.Queue.List()
	entries := make([]QueueEntry, 0, len(actions))

	for _, action := range actions {
		entry := QueueEntry{Image: action.ImageName, Target: action.Target}

		if cached, found := c.previewCache.Get(action.ImageName); found {
			if payload, ok := cached.(*imaging.Payload); ok {
				entry.ImageData = payload.ImageData
				entry.MimeType = payload.MimeType
			}
		} else {
			payload, err := imaging.NewPayloadFromFile(
				filepath.Join(c.Queue.InputDir(), action.ImageName), action.ImageName)
			if err != nil {
				// A vanished source surfaces at commit time; the preview
				// just stays empty.
				c.apiLogger.Warn("preview unavailable", "image", action.ImageName, "error", err)
			} else {
				c.previewCache.SetDefault(action.ImageName, payload)
				entry.ImageData = payload.ImageData
				entry.MimeType = payload.MimeType
			}
		}
		entries = append(entries, entry)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"actions":       entries,
		"pending_count": len(entries),
	})
}

// CommitQueue drains the queue, moves the files, and refreshes the model
// when at least one move succeeded.
func (c *Controller) CommitQueue(ctx echo.Context) error {
	result, err := c.Queue.Commit()
	if err != nil {
		return c.HandleError(ctx, err, "commit failed", 0)
	}

	for _, item := range result.Items {
		c.previewCache.Delete(item.ImageName)
	}

	response := CommitResponse{
		Items:   result.Items,
		Moved:   result.Moved,
		Retrain: c.refreshModel(ctx, result),
	}
	return ctx.JSON(http.StatusOK, response)
}

// refreshModel runs the configured post-commit retrain mode. The commit
// listener on the event bus covers background refresh; running it here as
// well lets the response carry the outcome, and the fingerprint-reuse
// check makes the second run a no-op.
func (c *Controller) refreshModel(ctx echo.Context, result pending.CommitResult) RetrainStatus {
	if result.Moved == 0 {
		return RetrainStatus{Status: "skipped"}
	}
	if c.Classifier == nil {
		return RetrainStatus{Status: "skipped"}
	}

	mode := c.Settings.Training.OnCommit
	status := RetrainStatus{Status: "ok", Mode: mode}

	var err error
	if mode == conf.OnCommitExtend {
		err = c.extendFromCommit(ctx, result)
	} else {
		_, err = c.Classifier.EnsureModel(ctx.Request().Context())
	}
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		c.apiLogger.Error("post-commit retrain failed", "mode", mode, "error", err)
	}
	return status
}

// extendFromCommit fine-tunes the current generation on just the images
// this commit moved.
func (c *Controller) extendFromCommit(ctx echo.Context, result pending.CommitResult) error {
	feedback := make([]classifier.FeedbackImage, 0, result.Moved)
	for _, item := range result.Items {
		if !item.Moved {
			continue
		}
		feedback = append(feedback, classifier.FeedbackImage{
			ImagePath: filepath.Join(c.Queue.WorkingDir(), item.Target, item.ImageName),
		})
	}

	labels, err := c.categoryLabels()
	if err != nil {
		return err
	}
	_, err = c.Classifier.ExtendModel(ctx.Request().Context(), feedback, labels)
	return err
}
