package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/pending"
)

// initModelRoutes registers the model lifecycle and inference endpoints.
func (c *Controller) initModelRoutes() {
	c.Group.POST("/model/init", c.InitModel, c.requireSession)
	c.Group.POST("/classify", c.ClassifyImage, c.requireSession)
}

// ClassifyRequest names an input-folder image to score.
type ClassifyRequest struct {
	Image string `json:"image"`
}

// InitModel ensures a model generation exists for the current dataset,
// training one if needed, and returns the resulting labels alongside the
// folder registry.
func (c *Controller) InitModel(ctx echo.Context) error {
	if c.Classifier == nil {
		return c.HandleError(ctx,
			errors.ModelUnavailable(nil, "classifier is not configured"),
			"classifier is not configured", 0)
	}

	gen, err := c.Classifier.EnsureModel(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "model initialization failed", 0)
	}

	records, err := c.Queue.Folders()
	if err != nil {
		return c.HandleError(ctx, err, "failed to list folders", 0)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"labels":  gen.Labels,
		"folders": records,
	})
}

// ClassifyImage scores one input image against the current category set.
func (c *Controller) ClassifyImage(ctx echo.Context) error {
	if c.Classifier == nil {
		return c.HandleError(ctx,
			errors.ModelUnavailable(nil, "classifier is not configured"),
			"classifier is not configured", 0)
	}

	var req ClassifyRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.Image == "" {
		return c.HandleError(ctx, errors.ValidationError("image is required"), "image is required", 0)
	}
	if req.Image != filepath.Base(req.Image) {
		return c.HandleError(ctx, errors.ValidationError("image must be a bare filename"), "image must be a bare filename", 0)
	}

	data, err := os.ReadFile(filepath.Join(c.Queue.InputDir(), req.Image))
	if err != nil {
		return c.HandleError(ctx, errors.NotFound("image %q not found in input folder", req.Image), "image not found", 0)
	}

	labels, err := c.categoryLabels()
	if err != nil {
		return c.HandleError(ctx, err, "failed to list category folders", 0)
	}
	if len(labels) == 0 {
		return c.HandleError(ctx, errors.NotFound("no category folders found"), "no category folders found", 0)
	}

	scores, err := c.Classifier.Classify(data, labels)
	if err != nil {
		return c.HandleError(ctx, err, "classification failed", 0)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"image":       req.Image,
		"predictions": scores,
	})
}

// categoryLabels lists every workspace folder usable as a label, which is
// everything except the reserved input folder. The trash folder behaves
// like an ordinary category.
func (c *Controller) categoryLabels() ([]string, error) {
	records, err := c.Queue.Folders()
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(records))
	for _, record := range records {
		if strings.EqualFold(record.Name, pending.InputFolder) {
			continue
		}
		labels = append(labels, record.Name)
	}
	return labels, nil
}
