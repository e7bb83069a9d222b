// Package api exposes clip generation and history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/orchestrator"
	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

// Runs is the part of the orchestrator the handlers drive.
type Runs interface {
	Generate(ctx context.Context, ownerID string, req types.GenerationRequest) (string, error)
	Status(ctx context.Context, runID string) (types.RunView, error)
	Cancel(runID string) error
}

type Purger interface {
	PurgeRun(ctx context.Context, runID string) error
	Retention() time.Duration
}

type Deps struct {
	Runs    Runs
	History ports.HistoryStore
	Purger  Purger
	// UploadDir receives uploaded sources until their run takes them over.
	UploadDir      string
	MaxUploadBytes int64
	// MediaDir is served at /media when set.
	MediaDir string
	Log      zerolog.Logger
}

type Handler struct {
	d        Deps
	validate *validator.Validate
}

// New builds the fiber app with every route registered.
func New(d Deps) *fiber.App {
	bodyLimit := fiber.DefaultBodyLimit
	if d.MaxUploadBytes > 0 {
		bodyLimit = int(d.MaxUploadBytes) + 1<<20
	}
	app := fiber.New(fiber.Config{
		AppName:               "tubebite",
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	h := &Handler{d: d, validate: newValidator()}

	app.Use(RequestLogger(d.Log))
	app.Get("/health", func(c *fiber.Ctx) error {
		return RespondWithJSON(c, fiber.StatusOK, fiber.Map{"healthy": true})
	})
	if d.MediaDir != "" {
		app.Static("/media", d.MediaDir)
	}

	v1 := app.Group("/api/v1", RequireUser())
	v1.Get("/templates", h.Templates)

	clips := v1.Group("/clips")
	clips.Post("/generate", h.Generate)
	clips.Post("/upload", h.Upload)
	clips.Get("/status/:runId", h.Status)
	clips.Post("/status/:runId/cancel", h.Cancel)

	history := v1.Group("/history")
	history.Get("", h.History)
	history.Delete("/:id", h.Trash)
	history.Post("/:id/restore", h.Restore)
	history.Delete("/:id/permanent", h.Purge)

	return app
}

func (h *Handler) Templates(c *fiber.Ctx) error {
	return RespondWithJSON(c, fiber.StatusOK, types.Templates())
}

func (h *Handler) Generate(c *fiber.Ctx) error {
	var body GenerateDTO
	if err := c.BodyParser(&body); err != nil {
		return RespondWithError(c, fiber.StatusBadRequest, "Cannot parse JSON: "+err.Error())
	}
	if err := h.validate.Struct(body); err != nil {
		return RespondWithError(c, fiber.StatusBadRequest, strings.Join(FormatValidationErrors(err), ", "))
	}
	req := body.Settings.request(types.Source{Kind: types.SourceURL, URL: strings.TrimSpace(body.URL)})
	return h.start(c, req)
}

func (h *Handler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return RespondWithError(c, fiber.StatusBadRequest, "Missing upload field 'file'")
	}
	var settings SettingsDTO
	if err := json.Unmarshal([]byte(c.FormValue("settings")), &settings); err != nil {
		return RespondWithError(c, fiber.StatusBadRequest, "Cannot parse settings: "+err.Error())
	}
	if err := h.validate.Struct(settings); err != nil {
		return RespondWithError(c, fiber.StatusBadRequest, strings.Join(FormatValidationErrors(err), ", "))
	}

	if err := os.MkdirAll(h.d.UploadDir, 0o755); err != nil {
		return RespondWithError(c, fiber.StatusInternalServerError, "Could not store upload")
	}
	dst := filepath.Join(h.d.UploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := c.SaveFile(fh, dst); err != nil {
		return RespondWithError(c, fiber.StatusInternalServerError, "Could not store upload")
	}
	req := settings.request(types.Source{
		Kind:       types.SourceUpload,
		UploadPath: dst,
		UploadName: filepath.Base(fh.Filename),
	})
	if err := h.start(c, req); err != nil {
		return err
	}
	if c.Response().StatusCode() != fiber.StatusAccepted {
		_ = os.Remove(dst)
	}
	return nil
}

func (h *Handler) start(c *fiber.Ctx, req types.GenerationRequest) error {
	runID, err := h.d.Runs.Generate(c.UserContext(), userID(c), req)
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return RespondWithError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrShuttingDown):
		return RespondWithError(c, fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		h.d.Log.Error().Err(err).Str("owner_id", userID(c)).Msg("start run")
		return RespondWithError(c, fiber.StatusInternalServerError, "Could not start generation")
	}
	return RespondWithJSON(c, fiber.StatusAccepted, GenerateResponse{RunID: runID, Stage: types.StageQueued})
}

func (h *Handler) Status(c *fiber.Ctx) error {
	v, err := h.d.Runs.Status(c.UserContext(), c.Params("runId"))
	if errors.Is(err, types.ErrRunNotFound) || (err == nil && v.OwnerID != userID(c)) {
		return RespondWithError(c, fiber.StatusNotFound, "Run not found")
	}
	if err != nil {
		return RespondWithError(c, fiber.StatusInternalServerError, "Could not load run status")
	}
	return RespondWithJSON(c, fiber.StatusOK, v)
}

func (h *Handler) Cancel(c *fiber.Ctx) error {
	runID := c.Params("runId")
	v, err := h.d.Runs.Status(c.UserContext(), runID)
	if errors.Is(err, types.ErrRunNotFound) || (err == nil && v.OwnerID != userID(c)) {
		return RespondWithError(c, fiber.StatusNotFound, "Run not found")
	}
	if err != nil {
		return RespondWithError(c, fiber.StatusInternalServerError, "Could not load run status")
	}
	if v.Stage.Terminal() {
		return RespondWithError(c, fiber.StatusConflict, "Run already finished")
	}
	if err := h.d.Runs.Cancel(runID); err != nil {
		return RespondWithError(c, fiber.StatusNotFound, "Run not found")
	}
	return RespondWithJSON(c, fiber.StatusAccepted, fiber.Map{"runId": runID, "cancelled": true})
}

func (h *Handler) History(c *fiber.Ctx) error {
	list, err := h.d.History.ListRuns(c.UserContext(), userID(c))
	if err != nil {
		h.d.Log.Error().Err(err).Str("owner_id", userID(c)).Msg("list history")
		return RespondWithError(c, fiber.StatusInternalServerError, "Could not load history")
	}
	return RespondWithJSON(c, fiber.StatusOK, list)
}

func (h *Handler) Trash(c *fiber.Ctx) error {
	if _, ok := h.owned(c); !ok {
		return nil
	}
	it, err := h.d.History.SoftDelete(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.storeError(c, err)
	}
	return RespondWithJSON(c, fiber.StatusOK, TrashResponse{
		Item:                 it,
		PermanentDeleteAfter: it.PurgeAfter(h.d.Purger.Retention()).UTC().Format(time.RFC3339),
	})
}

func (h *Handler) Restore(c *fiber.Ctx) error {
	if _, ok := h.owned(c); !ok {
		return nil
	}
	if err := h.d.History.Restore(c.UserContext(), c.Params("id")); err != nil {
		return h.storeError(c, err)
	}
	it, err := h.d.History.GetRun(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.storeError(c, err)
	}
	return RespondWithJSON(c, fiber.StatusOK, it)
}

func (h *Handler) Purge(c *fiber.Ctx) error {
	it, ok := h.owned(c)
	if !ok {
		return nil
	}
	if it.Status == types.StatusProcessing {
		return RespondWithError(c, fiber.StatusConflict, "Run is still processing")
	}
	if err := h.d.Purger.PurgeRun(c.UserContext(), it.ID); err != nil {
		return h.storeError(c, err)
	}
	return RespondWithJSON(c, fiber.StatusOK, fiber.Map{"id": it.ID, "deleted": true})
}

// owned loads the history item and writes a 404 when it belongs to someone
// else. ok is false once a response was written.
func (h *Handler) owned(c *fiber.Ctx) (types.HistoryItem, bool) {
	it, err := h.d.History.GetRun(c.UserContext(), c.Params("id"))
	if err == nil && it.OwnerID != userID(c) {
		err = types.ErrRunNotFound
	}
	if err != nil {
		_ = h.storeError(c, err)
		return types.HistoryItem{}, false
	}
	return it, true
}

func (h *Handler) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, types.ErrRunNotFound) {
		return RespondWithError(c, fiber.StatusNotFound, "History item not found")
	}
	h.d.Log.Error().Err(err).Str("owner_id", userID(c)).Msg("history store")
	return RespondWithError(c, fiber.StatusInternalServerError, "History store error")
}
