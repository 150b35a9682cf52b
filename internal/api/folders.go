package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixsort/pixsort-go/internal/errors"
)

// initFolderRoutes registers the category folder endpoints.
func (c *Controller) initFolderRoutes() {
	c.Group.GET("/folders", c.ListFolders, c.requireSession)
	c.Group.POST("/folders", c.CreateFolder, c.requireSession)
	c.Group.DELETE("/folders/:name", c.DeleteFolder, c.requireSession)
}

// FolderRequest is the body for folder creation.
type FolderRequest struct {
	Name string `json:"folder_name"`
}

// ListFolders returns every workspace folder with its state.
func (c *Controller) ListFolders(ctx echo.Context) error {
	records, err := c.Queue.Folders()
	if err != nil {
		return c.HandleError(ctx, err, "failed to list folders", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"folders": records})
}

// CreateFolder makes a new category folder.
func (c *Controller) CreateFolder(ctx echo.Context) error {
	var req FolderRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.Name == "" {
		return c.HandleError(ctx, errors.ValidationError("folder_name is required"), "folder_name is required", 0)
	}
	if err := c.Queue.CreateFolder(req.Name); err != nil {
		return c.HandleError(ctx, err, "failed to create folder", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "folder created",
		"name":    req.Name,
	})
}

// DeleteFolder removes an empty category folder with no pending actions.
func (c *Controller) DeleteFolder(ctx echo.Context) error {
	name := ctx.Param("name")
	if err := c.Queue.DeleteFolder(name); err != nil {
		return c.HandleError(ctx, err, "failed to delete folder", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "folder deleted",
		"name":    name,
	})
}
