package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/config"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/dto"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/services"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UploadConfig limits photo uploads.
type UploadConfig struct {
	Dir          string
	MaxFileSize  int64
	AllowedTypes []string
}

func UploadConfigFrom(cfg *config.Config) UploadConfig {
	return UploadConfig{
		Dir:          cfg.UploadPath,
		MaxFileSize:  cfg.MaxFileSize,
		AllowedTypes: cfg.AllowedFileTypes,
	}
}

type IssueHandler struct {
	issueService *services.IssueService
	uploads      UploadConfig
}

func NewIssueHandler(issueService *services.IssueService, uploads UploadConfig) *IssueHandler {
	return &IssueHandler{issueService: issueService, uploads: uploads}
}

func (h *IssueHandler) List(c *fiber.Ctx) error {
	page, err := h.issueService.List(c.UserContext(), c.Queries())
	if err != nil {
		return h.respondError(c, err, "")
	}

	count := page.Count
	return c.JSON(dto.Envelope{
		Success:    true,
		Count:      &count,
		Pagination: page.Pagination,
		Data:       page.Items,
	})
}

func (h *IssueHandler) Get(c *fiber.Ctx) error {
	id, err := issueID(c)
	if err != nil {
		return notFound(c)
	}

	issue, err := h.issueService.Get(c.UserContext(), id)
	if err != nil {
		return h.respondError(c, err, "")
	}
	return success(c, fiber.StatusOK, issue)
}

func (h *IssueHandler) Create(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Not authorized to access this route")
	}

	var req dto.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	issue, err := h.issueService.Create(c.UserContext(), actor, &req)
	if err != nil {
		return h.respondError(c, err, "create")
	}
	return success(c, fiber.StatusCreated, issue)
}

func (h *IssueHandler) Update(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Not authorized to access this route")
	}
	id, err := issueID(c)
	if err != nil {
		return notFound(c)
	}

	var req dto.UpdateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	issue, err := h.issueService.Update(c.UserContext(), id, actor, &req)
	if err != nil {
		return h.respondActorError(c, err, actor, "update")
	}
	return success(c, fiber.StatusOK, issue)
}

func (h *IssueHandler) Delete(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Not authorized to access this route")
	}
	id, err := issueID(c)
	if err != nil {
		return notFound(c)
	}

	if err := h.issueService.Delete(c.UserContext(), id, actor); err != nil {
		return h.respondActorError(c, err, actor, "delete")
	}
	return success(c, fiber.StatusOK, fiber.Map{})
}

// UploadPhoto stores the multipart "images" files and appends their public
// paths to the issue. Saved files are removed when the append is rejected.
func (h *IssueHandler) UploadPhoto(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Not authorized to access this route")
	}
	id, err := issueID(c)
	if err != nil {
		return notFound(c)
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil {
		files = form.File["images"]
	}
	if len(files) > models.MaxImages {
		return fail(c, fiber.StatusBadRequest, fmt.Sprintf("Exceeds the limit of %d images", models.MaxImages))
	}
	for _, fh := range files {
		if err := h.checkFile(fh); err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
	}

	saved := make([]string, 0, len(files))
	paths := make([]string, 0, len(files))
	for i, fh := range files {
		name := fmt.Sprintf("photo_%s_%d%s", actor.ID, time.Now().UnixNano()+int64(i), strings.ToLower(filepath.Ext(fh.Filename)))
		dest := filepath.Join(h.uploads.Dir, name)
		if err := c.SaveFile(fh, dest); err != nil {
			removeFiles(saved)
			return fmt.Errorf("failed to save upload: %w", err)
		}
		saved = append(saved, dest)
		paths = append(paths, "/uploads/"+name)
	}

	images, err := h.issueService.AppendPhotos(c.UserContext(), id, actor, paths)
	if err != nil {
		removeFiles(saved)
		return h.respondActorError(c, err, actor, "update")
	}
	return success(c, fiber.StatusOK, images)
}

func (h *IssueHandler) Upvote(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Not authorized to access this route")
	}
	id, err := issueID(c)
	if err != nil {
		return notFound(c)
	}

	if err := h.issueService.Upvote(c.UserContext(), id, actor); err != nil {
		return h.respondError(c, err, "upvote")
	}
	issue, err := h.issueService.Get(c.UserContext(), id)
	if err != nil {
		return h.respondError(c, err, "upvote")
	}
	return success(c, fiber.StatusOK, issue)
}

func (h *IssueHandler) Metrics(c *fiber.Ctx) error {
	metrics, err := h.issueService.Metrics(c.UserContext())
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, metrics)
}

// checkFile enforces the size limit and sniffs the content type; the
// client-declared type is not trusted.
func (h *IssueHandler) checkFile(fh *multipart.FileHeader) error {
	if h.uploads.MaxFileSize > 0 && fh.Size > h.uploads.MaxFileSize {
		return fmt.Errorf("File %s exceeds the size limit of %d bytes", fh.Filename, h.uploads.MaxFileSize)
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("Could not read file %s", fh.Filename)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return fmt.Errorf("Could not read file %s", fh.Filename)
	}
	if !mimetype.EqualsAny(mtype.String(), h.uploads.AllowedTypes...) {
		return fmt.Errorf("Please upload only the following types: %s", strings.Join(h.uploads.AllowedTypes, ", "))
	}
	return nil
}

func (h *IssueHandler) respondError(c *fiber.Ctx, err error, action string) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fail(c, fiber.StatusNotFound, fmt.Sprintf("Issue not found with id of %s", c.Params("id")))
	case statusFor(err) < fiber.StatusInternalServerError:
		return fail(c, statusFor(err), err.Error())
	}
	slog.Error("issue request failed", "request_id", requestID(c), "issue_id", c.Params("id"), "action", action, "error", err)
	return err
}

func (h *IssueHandler) respondActorError(c *fiber.Ctx, err error, actor services.Actor, verb string) error {
	if errors.Is(err, services.ErrUnauthorized) {
		return fail(c, fiber.StatusUnauthorized, fmt.Sprintf("User %s is not authorized to %s this issue", actor.ID, verb))
	}
	return h.respondError(c, err, verb)
}

func issueID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func notFound(c *fiber.Ctx) error {
	return fail(c, fiber.StatusNotFound, fmt.Sprintf("Issue not found with id of %s", c.Params("id")))
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove upload", "path", p, "error", err)
		}
	}
}
