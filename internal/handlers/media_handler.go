package handlers

import (
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/tinytalk/internal/media"
	"github.com/fathima-sithara/tinytalk/internal/metrics"
	service "github.com/fathima-sithara/tinytalk/internal/services"
	utils "github.com/fathima-sithara/tinytalk/internal/utils"
)

// Gate checks the household PIN and mints a session token.
type Gate interface {
	Login(pin string) (string, error)
}

type Handler struct {
	svc      *service.MediaService
	gate     Gate
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
	maxBytes int64
}

func NewHandler(svc *service.MediaService, gate Gate, m *metrics.Metrics, log *zap.SugaredLogger, maxBytes int64) *Handler {
	return &Handler{svc: svc, gate: gate, metrics: m, log: log, maxBytes: maxBytes}
}

func (h *Handler) weekParam(v string) string {
	if v == "" {
		return h.svc.CurrentWeek()
	}
	return v
}

// GET /api/photos?pin=X checks the PIN; GET /api/photos?week=KEY lists a week.
func (h *Handler) Photos(c *fiber.Ctx) error {
	if c.Context().QueryArgs().Has("pin") {
		token, err := h.gate.Login(c.Query("pin"))
		h.metrics.PINAttempts.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			if errors.Is(err, utils.ErrUnauthorized) {
				return utils.JSONError(c, fiber.StatusUnauthorized, "Invalid PIN")
			}
			h.log.Errorw("pin check failed", "error", err)
			return utils.JSONError(c, fiber.StatusInternalServerError, "Something went wrong")
		}
		return utils.JSON(c, fiber.StatusOK, fiber.Map{"ok": true, "token": token})
	}

	weekKey := h.weekParam(c.Query("week"))
	if !h.svc.Calendar().Valid(weekKey) {
		return utils.JSON(c, fiber.StatusOK, fiber.Map{"items": []media.Item{}})
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"items": h.svc.ListWeek(c.UserContext(), weekKey)})
}

// GET /api/weeks
func (h *Handler) Weeks(c *fiber.Ctx) error {
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"weeks": h.svc.ListWeeks(c.UserContext())})
}

// GET /api/theme?week=KEY
func (h *Handler) GetTheme(c *fiber.Ctx) error {
	weekKey := h.weekParam(c.Query("week"))
	if !h.svc.Calendar().Valid(weekKey) {
		return utils.JSON(c, fiber.StatusOK, fiber.Map{"theme": "none"})
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"theme": h.svc.GetTheme(c.UserContext(), weekKey)})
}

type themeRequest struct {
	Week  string `json:"week"`
	Theme string `json:"theme"`
}

// POST /api/theme {week, theme}
func (h *Handler) SetTheme(c *fiber.Ctx) error {
	var req themeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid body")
	}
	weekKey := h.weekParam(req.Week)
	if err := h.svc.SetTheme(c.UserContext(), weekKey, req.Theme); err != nil {
		return h.fail(c, err, "Failed to save theme")
	}
	h.metrics.ThemeChanges.WithLabelValues(req.Theme).Inc()
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"ok": true, "theme": req.Theme})
}

// GET /api/themes
func (h *Handler) Themes(c *fiber.Ctx) error {
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"themes": h.svc.Catalog().All()})
}

// POST /api/upload (multipart/form-data: file, week, type)
func (h *Handler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "No file provided")
	}
	if err := utils.ValidateFileHeader(fileHeader, h.maxBytes); err != nil {
		return h.fail(c, err, "Upload failed")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "cannot open file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "cannot read file")
	}

	declared := c.FormValue("type")
	item, err := h.svc.Upload(c.UserContext(), service.UploadRequest{
		Filename:     fileHeader.Filename,
		ContentType:  utils.SniffContentType(fileHeader, data),
		DeclaredType: declared,
		WeekKey:      c.FormValue("week"),
		Data:         data,
	})
	label := declared
	if item != nil {
		label = string(item.Type)
		h.metrics.UploadBytes.Add(float64(item.Size))
	}
	if _, ok := media.ParseType(label); !ok {
		label = "unknown"
	}
	h.metrics.Uploads.WithLabelValues(label, metrics.Result(err)).Inc()
	if err != nil {
		return h.fail(c, err, "Upload failed")
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"item": item})
}

type deleteRequest struct {
	Pathname string `json:"pathname"`
}

// POST /api/delete {pathname}
func (h *Handler) Delete(c *fiber.Ctx) error {
	var req deleteRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid body")
	}
	err := h.svc.Delete(c.UserContext(), req.Pathname)
	h.metrics.Deletes.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.JSONError(c, fiber.StatusNotFound, "File not found")
		}
		return h.fail(c, err, "Delete failed")
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"ok": true})
}

// GET /api/thumb?pathname=P&w=320
func (h *Handler) Thumbnail(c *fiber.Ctx) error {
	b, err := h.svc.Thumbnail(c.UserContext(), c.Query("pathname"), c.QueryInt("w", service.ThumbnailWidth))
	if err != nil {
		return h.fail(c, err, "Thumbnail failed")
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(b)
}

// GET /uploads/* streams a stored object.
func (h *Handler) Object(c *fiber.Ctx) error {
	p := strings.TrimPrefix(c.Params("*"), "/")
	b, err := h.svc.Open(c.UserContext(), p)
	if err != nil {
		return h.fail(c, err, "Read failed")
	}
	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, ct)
	c.Set(fiber.HeaderCacheControl, "private, max-age=31536000, immutable")
	return c.Send(b)
}

// fail maps err onto the error taxonomy. Validation and not-found messages
// are passed through; backend failures get the generic message.
func (h *Handler) fail(c *fiber.Ctx, err error, generic string) error {
	status := utils.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.log.Errorw(generic, "path", c.Path(), "error", err)
		return utils.JSONError(c, status, generic)
	}
	return utils.JSONError(c, status, err.Error())
}
