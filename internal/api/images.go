package api

import (
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/pixsort/pixsort-go/internal/imaging"
)

// initImageRoutes registers the input image endpoints.
func (c *Controller) initImageRoutes() {
	c.Group.GET("/images/next", c.NextImage, c.requireSession)
}

// NextImage returns the next input image with no pending action, as a
// base64 payload tagged with its MIME type.
func (c *Controller) NextImage(ctx echo.Context) error {
	name, err := c.Queue.NextImage()
	if err != nil {
		return c.HandleError(ctx, err, "no images available", 0)
	}

	payload, err := imaging.NewPayloadFromFile(filepath.Join(c.Queue.InputDir(), name), name)
	if err != nil {
		return c.HandleError(ctx, err, "failed to read image", 0)
	}
	return ctx.JSON(http.StatusOK, payload)
}
