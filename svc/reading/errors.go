package reading

import "errors"

// Validation errors
var (
	ErrInvalidPosition      = errors.New("position must be between 0 and 100")
	ErrInvalidProgressRange = errors.New("end position is lower than start position")
	ErrInvalidPagination    = errors.New("page must be >= 1 and page size between 1 and the allowed maximum")
	ErrEmptyBatch           = errors.New("batch contains no updates")
	ErrBatchTooLarge        = errors.New("batch exceeds the maximum number of updates")
	ErrInvalidUserID        = errors.New("user id is required")
)

// Not found errors
var (
	ErrSessionNotFound = errors.New("reading session not found")
	ErrBookNotFound    = errors.New("book not found")
	ErrUserNotFound    = errors.New("user not found")
)

// State conflict errors
var (
	ErrSessionEnded          = errors.New("reading session already ended")
	ErrActiveSessionConflict = errors.New("user already has an active reading session")
)

// Infrastructure errors
var (
	ErrStorage          = errors.New("storage failure")
	ErrCacheUnavailable = errors.New("active session cache unavailable")
	ErrNilStore         = errors.New("store cannot be nil")
)

// Kind classifies an error for callers that render user-facing messages.
type Kind string

const (
	KindNone          Kind = ""
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindStateConflict Kind = "state_conflict"
	KindStorage       Kind = "storage"
	KindCache         Kind = "cache_unavailable"
	KindUnknown       Kind = "unknown"
)

// KindOf maps err to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case IsValidation(err):
		return KindValidation
	case IsNotFound(err):
		return KindNotFound
	case IsStateConflict(err):
		return KindStateConflict
	case IsStorage(err):
		return KindStorage
	case IsCacheUnavailable(err):
		return KindCache
	default:
		return KindUnknown
	}
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPosition) ||
		errors.Is(err, ErrInvalidProgressRange) ||
		errors.Is(err, ErrInvalidPagination) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrInvalidUserID)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

func IsStateConflict(err error) bool {
	return errors.Is(err, ErrSessionEnded) || errors.Is(err, ErrActiveSessionConflict)
}

func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsCacheUnavailable reports a cache failure. The Manager never returns one.
func IsCacheUnavailable(err error) bool {
	return errors.Is(err, ErrCacheUnavailable)
}

// BatchError identifies the update that aborted a batch.
// Nothing from the batch was persisted.
type BatchError struct {
	Index     int
	SessionID string
	Err       error
}

func (e *BatchError) Error() string {
	return "batch update " + e.SessionID + " rejected: " + e.Err.Error()
}

func (e *BatchError) Unwrap() error { return e.Err }
