// Package apperrors classifies failures into the taxonomy the rest of
// the system branches on, replacing ad-hoc exception propagation with
// typed, wrapped errors that satisfy errors.Is/errors.As.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the error taxonomy a failure belongs
// to, per spec §7.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindStorageUnavail   Kind = "storage_unavailable"
	KindCrawlFailure     Kind = "crawl_failure"
	KindExtractionWarn   Kind = "extraction_warning"
	KindIndexingError    Kind = "indexing_error"
	KindBackendError     Kind = "backend_error"
)

// Error is the concrete error type carried through the system. Callers
// should construct one via the New* helpers and inspect it with As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &apperrors.Error{Kind: apperrors.KindNotFound}) style checks by
// comparing Kind rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validationf(format string, args ...any) *Error {
	return newErr(KindValidation, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...any) *Error {
	return newErr(KindNotFound, fmt.Sprintf(format, args...), nil)
}

func StorageUnavailable(err error) *Error {
	return newErr(KindStorageUnavail, "storage unavailable", err)
}

func CrawlFailuref(format string, args ...any) *Error {
	return newErr(KindCrawlFailure, fmt.Sprintf(format, args...), nil)
}

func ExtractionWarning(err error) *Error {
	return newErr(KindExtractionWarn, "extraction failed for record", err)
}

func IndexingErrorf(err error, format string, args ...any) *Error {
	return newErr(KindIndexingError, fmt.Sprintf(format, args...), err)
}

func Backend(err error) *Error {
	return newErr(KindBackendError, "backend error", err)
}

// Is* helpers mirror errors.Is(err, apperrors.Kind...) for callers that
// prefer not to import the Kind constants directly.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return kindOf(err) == KindNotFound }
func IsStorageUnavailable(err error) bool {
	return kindOf(err) == KindStorageUnavail
}
func IsBackend(err error) bool { return kindOf(err) == KindBackendError }

func kindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var as *Error
	if errors.As(err, &as) {
		return as.Kind
	}
	return ""
}
