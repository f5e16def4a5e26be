package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"healtharchive/internal/apperrors"
)

// ErrorResponse matches the envelope shape used across the public and
// admin surfaces.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// writeError maps an apperrors.Kind to the status code spec §7 names
// (ValidationError→422, NotFound→404, BackendError→500,
// StorageUnavailable during raw-snapshot reads→503) and writes the
// envelope. rawSnapshotRead narrows the StorageUnavailable mapping,
// since that kind maps to 503 only on the raw-snapshot read path and
// to 500 elsewhere.
func writeError(c *fiber.Ctx, err error, rawSnapshotRead bool) error {
	status := fiber.StatusInternalServerError
	code := "INTERNAL_ERROR"

	switch {
	case apperrors.IsValidation(err):
		status, code = fiber.StatusUnprocessableEntity, "VALIDATION_ERROR"
	case apperrors.IsNotFound(err):
		status, code = fiber.StatusNotFound, "NOT_FOUND"
	case apperrors.IsStorageUnavailable(err):
		if rawSnapshotRead {
			status, code = fiber.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
		}
	case apperrors.IsBackend(err):
		status, code = fiber.StatusInternalServerError, "BACKEND_ERROR"
	}

	return c.Status(status).JSON(ErrorResponse{Success: false, Code: code, Error: err.Error()})
}
