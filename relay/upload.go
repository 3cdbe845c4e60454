package relay

import (
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatrelay/pkg/upload"
)

const noFileMessage = "no file selected for upload"

// UploadedFile is a stored upload as reported to clients.
type UploadedFile struct {
	upload.File
	URL string `json:"url"`
}

type uploadResponse struct {
	Success bool           `json:"success"`
	File    *UploadedFile  `json:"file,omitempty"`
	Files   []UploadedFile `json:"files,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (r *Relay) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(uploadResponse{Error: noFileMessage})
	}

	f, err := r.saveUpload(c, fh)
	if err != nil {
		return r.uploadError(c, err)
	}

	return c.JSON(uploadResponse{Success: true, File: &f})
}

func (r *Relay) handleUploadMultiple(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(uploadResponse{Error: noFileMessage})
	}

	headers := form.File["files"]
	if len(headers) > upload.MaxFiles {
		return c.Status(fiber.StatusBadRequest).JSON(uploadResponse{
			Error: fmt.Sprintf("at most %d files can be uploaded at once", upload.MaxFiles),
		})
	}

	files := make([]UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := r.saveUpload(c, fh)
		if err != nil {
			return r.uploadError(c, err)
		}
		files = append(files, f)
	}

	r.logger.Info("files uploaded", "count", len(files))
	return c.JSON(uploadResponse{Success: true, Files: files})
}

func (r *Relay) handleFiles(c *fiber.Ctx) error {
	stored, err := r.config.Uploads.List()
	if err != nil {
		return r.uploadError(c, err)
	}

	files := make([]UploadedFile, 0, len(stored))
	for _, f := range stored {
		files = append(files, UploadedFile{File: f, URL: c.BaseURL() + f.Path})
	}
	return c.JSON(uploadResponse{Success: true, Files: files})
}

func (r *Relay) saveUpload(c *fiber.Ctx, fh *multipart.FileHeader) (UploadedFile, error) {
	if fh.Size > upload.MaxFileSize {
		return UploadedFile{}, upload.ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return UploadedFile{}, fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	f, err := r.config.Uploads.Save(fh.Filename, fh.Header.Get("Content-Type"), src)
	if err != nil {
		return UploadedFile{}, err
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}

	r.logger.Info("file uploaded",
		"name", f.Name,
		"size", f.Size,
		"type", f.Type,
		"category", f.Category,
	)

	return UploadedFile{File: f, URL: c.BaseURL() + f.Path}, nil
}

func (r *Relay) uploadError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if errors.Is(err, upload.ErrTooLarge) {
		status = fiber.StatusRequestEntityTooLarge
	}
	r.logger.Error("upload failed", "error", err)
	return c.Status(status).JSON(uploadResponse{Error: err.Error()})
}
