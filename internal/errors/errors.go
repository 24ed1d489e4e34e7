package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorType is the error taxonomy from the job failure design: a stage or
// admission failure carries exactly one of these kinds.
type ErrorType int

const (
	PreflightRejected ErrorType = iota
	DeviceStateChanged
	ImageNotFound
	ImageReadError
	WriteIOError
	VerifyMismatch
	VerifyIOError
	StageTimeout
	Cancelled
	SubprocessExit
	Internal
)

// AppError represents an application-specific error with context. Op
// records the operation that failed; Context carries structured attributes
// for logging (job_id, device, offset, ...).
type AppError struct {
	Type    ErrorType
	Op      string
	Err     error
	Message string
	Code    int // HTTP status code
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// String returns the error type as its wire-level kind name.
func (et ErrorType) String() string {
	switch et {
	case PreflightRejected:
		return "PreflightRejected"
	case DeviceStateChanged:
		return "DeviceStateChanged"
	case ImageNotFound:
		return "ImageNotFound"
	case ImageReadError:
		return "ImageReadError"
	case WriteIOError:
		return "WriteIOError"
	case VerifyMismatch:
		return "VerifyMismatch"
	case VerifyIOError:
		return "VerifyIOError"
	case StageTimeout:
		return "StageTimeout"
	case Cancelled:
		return "Cancelled"
	case SubprocessExit:
		return "SubprocessExit"
	case Internal:
		return "Internal"
	default:
		return "unknown"
	}
}

// httpCode maps a taxonomy kind to one of {400, 404, 409, 500} per the
// error handling design. 409 is reserved for a non-terminal job already
// bound to a cell/device and for a device state changing mid-pipeline.
func httpCode(t ErrorType) int {
	switch t {
	case PreflightRejected:
		return http.StatusBadRequest
	case DeviceStateChanged:
		return http.StatusConflict
	case ImageNotFound:
		return http.StatusNotFound
	case ImageReadError, WriteIOError, VerifyIOError, StageTimeout,
		SubprocessExit, Internal:
		return http.StatusInternalServerError
	case VerifyMismatch:
		return http.StatusInternalServerError
	case Cancelled:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New builds an AppError of the given kind, deriving its HTTP status from
// the taxonomy mapping.
func New(t ErrorType, op string, err error) *AppError {
	msg := t.String()
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Type:    t,
		Op:      op,
		Err:     err,
		Message: msg,
		Code:    httpCode(t),
	}
}

// NewPreflightRejected reports a safety-gate rejection at admission.
func NewPreflightRejected(op string, reason string) *AppError {
	return New(PreflightRejected, op, fmt.Errorf("%s", reason))
}

// NewDeviceStateChanged reports a safety-gate rejection at a stage boundary,
// after the job had already been admitted.
func NewDeviceStateChanged(op string, reason string) *AppError {
	return New(DeviceStateChanged, op, fmt.Errorf("%s", reason))
}

// NewImageNotFound reports a missing or unresolvable image path.
func NewImageNotFound(op string, err error) *AppError {
	return New(ImageNotFound, op, err)
}

// NewImageReadError reports a failure reading or decompressing the source image.
func NewImageReadError(op string, err error) *AppError {
	return New(ImageReadError, op, err)
}

// NewWriteIOError reports a write-stage I/O failure.
func NewWriteIOError(op string, err error) *AppError {
	return New(WriteIOError, op, err)
}

// NewVerifyMismatch reports a digest mismatch between the image and the
// written device.
func NewVerifyMismatch(op string, offset int64) *AppError {
	e := New(VerifyMismatch, op, fmt.Errorf("digest mismatch at offset %d", offset))
	return e.WithContext("offset", offset)
}

// NewVerifyIOError reports a verify-stage I/O failure unrelated to content mismatch.
func NewVerifyIOError(op string, err error) *AppError {
	return New(VerifyIOError, op, err)
}

// NewStageTimeout reports a stage exceeding its wall-clock ceiling.
func NewStageTimeout(op string, stage string) *AppError {
	e := New(StageTimeout, op, fmt.Errorf("stage %s exceeded its timeout", stage))
	return e.WithContext("stage", stage)
}

// NewCancelled reports a job or subprocess terminated by user cancellation.
func NewCancelled(op string) *AppError {
	return New(Cancelled, op, fmt.Errorf("cancelled"))
}

// NewSubprocessExit reports a helper subprocess (growpart, resize2fs, ...)
// exiting with a non-zero, non-recognized status.
func NewSubprocessExit(op string, code int) *AppError {
	e := New(SubprocessExit, op, fmt.Errorf("subprocess exited with code %d", code))
	return e.WithContext("exit_code", code)
}

// NewInternalError reports a defect or unexpected condition inside Janus itself.
func NewInternalError(op string, err error) *AppError {
	return New(Internal, op, err)
}

// WithContext adds a structured attribute to an existing AppError.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// LogError logs an AppError with its taxonomy kind and context attached.
func LogError(logger *slog.Logger, err *AppError) {
	logArgs := []interface{}{
		slog.String("kind", err.Type.String()),
		slog.String("operation", err.Op),
		slog.Int("code", err.Code),
	}

	for k, v := range err.Context {
		logArgs = append(logArgs, slog.Any(k, v))
	}

	logger.Error(err.Message, logArgs...)
}

// httpErrorBody is the wire shape for an error response: {detail, kind?}.
type httpErrorBody struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
}

// HandleHTTPError writes the taxonomy-mapped status code and a
// {detail, kind} JSON body, and logs the error.
func HandleHTTPError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *AppError

	if IsAppError(err, &appErr) {
		LogError(logger, appErr)
		writeJSONError(w, appErr.Code, appErr.Message, appErr.Type.String())
		return
	}

	logger.Error("unhandled error", slog.String("error", err.Error()))
	writeJSONError(w, http.StatusInternalServerError, "internal server error", "")
}

func writeJSONError(w http.ResponseWriter, code int, detail, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(httpErrorBody{Detail: detail, Kind: kind})
}

// IsAppError checks if an error is an AppError and extracts it.
func IsAppError(err error, target **AppError) bool {
	if appErr, ok := err.(*AppError); ok {
		*target = appErr
		return true
	}
	return false
}

// Wrap wraps an error with an additional operation label, preserving kind
// and HTTP status when the underlying error is already an AppError.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if IsAppError(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Op:      op + " -> " + appErr.Op,
			Err:     appErr.Err,
			Message: appErr.Message,
			Code:    appErr.Code,
			Context: appErr.Context,
		}
	}

	return New(Internal, op, err)
}
