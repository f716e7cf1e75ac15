package http

import (
	"bytes"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-classroom/internal/core/services"
)

const defaultLogTail = 100

// ResourceHandler serves the resource and container record API.
type ResourceHandler struct {
	resources   *services.ResourceService
	coordinator *services.Coordinator
	registry    *services.Registry
}

func NewResourceHandler(resources *services.ResourceService, coordinator *services.Coordinator, registry *services.Registry) *ResourceHandler {
	return &ResourceHandler{resources: resources, coordinator: coordinator, registry: registry}
}

// CreateResource stores the multipart "content" file as a new resource.
func (h *ResourceHandler) CreateResource(c *fiber.Ctx) error {
	fh, err := c.FormFile("content")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "multipart field 'content' is required",
		})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	defer f.Close()

	res, rec, err := h.resources.Create(c.Context(), fh.Filename, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"resource": res,
		"record":   rec,
	})
}

type ImportResourceRequest struct {
	RepoURL string `json:"repo_url"`
	Entry   string `json:"entry"`
}

// ImportResource clones a repository and stores its entry file as a new resource.
func (h *ResourceHandler) ImportResource(c *fiber.Ctx) error {
	var req ImportResourceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.RepoURL == "" || req.Entry == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "repo_url and entry are required",
		})
	}

	res, rec, err := h.resources.Import(c.Context(), req.RepoURL, req.Entry)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"resource": res,
		"record":   rec,
	})
}

func (h *ResourceHandler) ListResources(c *fiber.Ctx) error {
	resources, err := h.resources.List(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resources)
}

func (h *ResourceHandler) GetResource(c *fiber.Ctx) error {
	res, err := h.resources.Get(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// UpdateContent replaces a resource's content from the multipart "content"
// file or, failing that, the raw request body.
func (h *ResourceHandler) UpdateContent(c *fiber.Ctx) error {
	id := c.Params("id")

	if fh, err := c.FormFile("content"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		defer f.Close()
		res, err := h.resources.UpdateContent(c.Context(), id, f)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(res)
	}

	res, err := h.resources.UpdateContent(c.Context(), id, bytes.NewReader(c.Body()))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *ResourceHandler) DeleteResource(c *fiber.Ctx) error {
	if err := h.resources.Delete(c.Context(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Publish builds and starts the resource's container if needed and returns its host port.
func (h *ResourceHandler) Publish(c *fiber.Ctx) error {
	port, err := h.coordinator.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"host_port": port,
	})
}

func (h *ResourceHandler) ListRecords(c *fiber.Ctx) error {
	records, err := h.registry.List(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(records)
}

// RecordLogs returns the tail of the resource container's output as plain text.
func (h *ResourceHandler) RecordLogs(c *fiber.Ctx) error {
	tail := defaultLogTail
	if v := c.Query("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "tail must be a non-negative integer",
			})
		}
		tail = n
	}

	logs, err := h.coordinator.Logs(c.Context(), c.Params("id"), tail)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(logs)
}
