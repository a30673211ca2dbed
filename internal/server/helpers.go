package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"postboard/internal/media"
	"postboard/internal/middleware"
	"postboard/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const maxPaginationLimit = 100

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{Limit: limit, Offset: offset}
}

// parseID extracts a route parameter as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// currentUserID returns the caller set by AuthRequired or writes a 401.
func currentUserID(c *fiber.Ctx) (uint, error) {
	id, err := middleware.UserID(c)
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
		return 0, errResponseWritten
	}
	return id, nil
}

// statusFor maps an error's taxonomy code to an HTTP status.
func statusFor(err error) int {
	switch models.ErrorCode(err) {
	case models.CodeValidation, models.CodePasswordReused, models.CodeInvalidToken:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized, models.CodeInvalidCredentials:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict:
		return fiber.StatusConflict
	case models.CodeRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with the status its code maps to. Errors outside
// the taxonomy are reported as internal.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if models.ErrorCode(err) == "" {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "error", err)
		err = models.NewInternalError(err)
	}
	return models.RespondWithError(c, status, err)
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// stageUpload saves the image in form field to the temp upload directory
// under a fresh name. It returns nil when the request carries no such file.
// Callers must defer discardStaged on the result.
func (s *Server) stageUpload(c *fiber.Ctx, field string) (*media.Upload, error) {
	if !isMultipart(c) {
		return nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, models.NewValidationError("Invalid multipart form")
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	fh := files[0]

	if fh.Size > s.config.MaxUploadBytes() {
		return nil, models.NewValidationError("Uploaded file is too large")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, models.NewValidationError("failed to read upload")
	}
	_, ext, err := media.DetectImage(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	tmpDir := s.config.UploadTmpDir()
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, models.NewStorageError("failed to create upload directory", err)
	}

	name := uuid.NewString() + ext
	dest := filepath.Join(tmpDir, name)
	if err := c.SaveFile(fh, dest); err != nil {
		return nil, models.NewStorageError("failed to save upload", err)
	}

	return &media.Upload{Filename: name, TempPath: dest}, nil
}

// discardStaged removes a staged upload a store did not consume.
func discardStaged(upload *media.Upload) {
	if upload == nil {
		return
	}
	if err := os.Remove(upload.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		middleware.Logger.Warn("failed to remove staged upload", "path", upload.TempPath, "error", err)
	}
}
