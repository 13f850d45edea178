package handlers

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teledrop/teledrop/internal/apperr"
	"github.com/teledrop/teledrop/internal/coordinator"
	"github.com/teledrop/teledrop/internal/db"
	"github.com/teledrop/teledrop/internal/middleware"
	"github.com/teledrop/teledrop/internal/models"
	"github.com/teledrop/teledrop/internal/rangeio"
)

type DropHandler struct {
	Coord *coordinator.Coordinator
}

func NewDropHandler(coord *coordinator.Coordinator) *DropHandler {
	return &DropHandler{Coord: coord}
}

// Create handles POST /api/content/.
func (h *DropHandler) Create(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return writeError(c, apperr.ValidationError("field \"file\" is required"))
	}
	f, err := fileHeader.Open()
	if err != nil {
		return writeError(c, apperr.ValidationError("failed to open uploaded file"))
	}
	defer f.Close()

	caller := middleware.Caller(c)
	ownerID := models.AnonymousOwner
	if caller.Authenticated {
		ownerID = caller.ID
	}

	in := coordinator.CreateInput{
		Slug:        c.FormValue("slug"),
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Passphrase:  c.FormValue("password"),
		Private:     parseBoolForm(c.FormValue("private")),
		Favorite:    parseBoolForm(c.FormValue("favorite")),
		Filename:    fileHeader.Filename,
		MediaType:   fileHeader.Header.Get("Content-Type"),
		Body:        f,
		OwnerID:     ownerID,
	}

	drop, err := h.Coord.Create(c.Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(drop.ToSnapshot())
}

// Preview implements GET /api/content/{slug}/preview.
func (h *DropHandler) Preview(c *fiber.Ctx) error {
	slug := c.Params("slug")
	password := passwordParam(c)
	caller := middleware.Caller(c)

	drop, err := h.Coord.Preview(c.Context(), slug, caller, password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(drop.ToSnapshot())
}

// Download handles GET /api/content/{slug}, honoring Range requests.
func (h *DropHandler) Download(c *fiber.Ctx) error {
	slug := c.Params("slug")
	password := passwordParam(c)
	caller := middleware.Caller(c)

	drop, err := h.Coord.Preview(c.Context(), slug, caller, password)
	if err != nil {
		return writeError(c, err)
	}
	if drop.File == nil {
		return writeError(c, apperr.NotFound("drop has no file: "+slug))
	}

	size := drop.File.Size
	plan, perr := rangeio.Resolve(c.Get("Range"), size)
	if perr != nil {
		c.Set("Content-Range", rangeio.UnsatisfiableContentRangeHeader(size))
		return c.Status(fiber.StatusRequestedRangeNotSatisfiable).Send(nil)
	}

	asAttachment := parseBoolForm(c.Query("as_attachment"))
	c.Set("Content-Type", drop.File.MediaType)
	c.Set("Accept-Ranges", "bytes")
	c.Set("Content-Disposition", rangeio.ContentDisposition(drop.File.Name, asAttachment))
	c.Set("Content-Length", strconv.FormatInt(plan.Length(), 10))

	status := fiber.StatusOK
	if plan.Partial {
		status = fiber.StatusPartialContent
		c.Set("Content-Range", plan.ContentRangeHeader())
	}
	c.Status(status)

	storageKey := drop.File.StorageKey
	chunkSize := h.Coord.Cfg.ChunkSize
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		_, _ = rangeio.Stream(c.Context(), h.Coord.Blob, storageKey, plan, w, chunkSize)
		_ = w.Flush()
	})
	return nil
}

// UpdateDetail implements PATCH /api/content/{slug}/detail.
func (h *DropHandler) UpdateDetail(c *fiber.Ctx) error {
	slug := c.Params("slug")
	caller := middleware.Caller(c)

	var in coordinator.UpdateDetailInput
	if v := c.FormValue("title"); v != "" || c.Request().PostArgs().Has("title") {
		in.Title = &v
	}
	if v := c.FormValue("description"); v != "" || c.Request().PostArgs().Has("description") {
		in.Description = &v
	}

	drop, err := h.Coord.UpdateDetail(c.Context(), slug, caller, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(drop.ToSnapshot())
}

// UpdatePermission implements PATCH /api/content/{slug}/permission.
func (h *DropHandler) UpdatePermission(c *fiber.Ctx) error {
	slug := c.Params("slug")
	caller := middleware.Caller(c)
	private := parseBoolForm(c.FormValue("private"))

	drop, err := h.Coord.UpdatePermission(c.Context(), slug, caller, private)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(drop.ToSnapshot())
}

// UpdateFavorite implements PATCH /api/content/{slug}/favorite.
func (h *DropHandler) UpdateFavorite(c *fiber.Ctx) error {
	slug := c.Params("slug")
	caller := middleware.Caller(c)
	favorite := parseBoolForm(c.FormValue("favorite"))

	drop, err := h.Coord.UpdateFavorite(c.Context(), slug, caller, favorite)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(drop.ToSnapshot())
}

// UpdatePassword implements PATCH /api/content/{slug}/password.
func (h *DropHandler) UpdatePassword(c *fiber.Ctx) error {
	slug := c.Params("slug")
	caller := middleware.Caller(c)
	newPassword := c.FormValue("new_password")

	drop, err := h.Coord.SetPassword(c.Context(), slug, caller, newPassword)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(drop.ToSnapshot())
}

// ResetPassword implements PATCH /api/content/{slug}/reset.
func (h *DropHandler) ResetPassword(c *fiber.Ctx) error {
	slug := c.Params("slug")
	caller := middleware.Caller(c)

	drop, err := h.Coord.RemovePassword(c.Context(), slug, caller)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(drop.ToSnapshot())
}

// Delete implements DELETE /api/content/{slug}.
func (h *DropHandler) Delete(c *fiber.Ctx) error {
	slug := c.Params("slug")
	caller := middleware.Caller(c)

	if err := h.Coord.Delete(c.Context(), slug, caller); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// KeyCheck implements GET /api/content/keycheck/{slug}.
func (h *DropHandler) KeyCheck(c *fiber.Ctx) error {
	slug := c.Params("slug")
	available, err := h.Coord.SlugAvailable(c.Context(), slug)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"exists": !available})
}

// List handles GET /api/content/, an owner-only listing.
func (h *DropHandler) List(c *fiber.Ctx) error {
	caller := middleware.Caller(c)
	sortKey := db.SortKey(c.Query("sort", string(db.SortCreatedAt)))
	order := db.Order(c.Query("order", string(db.Desc)))
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	result, err := h.Coord.List(c.Context(), caller, sortKey, order, page, pageSize)
	if err != nil {
		return writeError(c, err)
	}
	snapshots := make([]models.Snapshot, len(result.Drops))
	for i := range result.Drops {
		snapshots[i] = result.Drops[i].ToSnapshot()
	}
	return c.JSON(fiber.Map{"drops": snapshots, "total": result.Total})
}

func parseBoolForm(v string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

// passwordParam accepts the passphrase as either a form field or a
// query parameter, since download links need it in the URL.
func passwordParam(c *fiber.Ctx) string {
	if v := c.FormValue("password"); v != "" {
		return v
	}
	return c.Query("password")
}
