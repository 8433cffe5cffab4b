package domain

import "fmt"

// ErrorKind — класс ошибки task.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "VALIDATION_ERROR"
	ErrorKindQueueFull     ErrorKind = "QUEUE_FULL"
	ErrorKindStepTimeout   ErrorKind = "STEP_TIMEOUT"
	ErrorKindStepFailure   ErrorKind = "STEP_FAILURE"
	ErrorKindTrackNotFound ErrorKind = "TRACK_NOT_FOUND"
	ErrorKindTaskTimeout   ErrorKind = "TASK_TIMEOUT"
	ErrorKindInternal      ErrorKind = "INTERNAL_ERROR"
)

// ErrorCode — детальный код ошибки (уточняет ErrorKind).
type ErrorCode string

const (
	CodeTrackingFailed   ErrorCode = "TRACKING_FAILED"
	CodeExtractionFailed ErrorCode = "TRACK_EXTRACTION_FAILED"
	CodeNoTracksFound    ErrorCode = "NO_TRACKS_FOUND"
	CodeSmoothingFailed  ErrorCode = "SMOOTHING_FAILED"
	CodeExportFailed     ErrorCode = "EXPORT_FAILED"
	CodePackagingFailed  ErrorCode = "PACKAGING_FAILED"
	CodeTaskTimeout      ErrorCode = "TASK_TIMEOUT"
	CodeGPUOutOfMemory   ErrorCode = "GPU_OUT_OF_MEMORY"
	CodeDiskFull         ErrorCode = "DISK_FULL"
	CodeQueueFull        ErrorCode = "QUEUE_FULL"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StepErrorCode возвращает код ошибки по умолчанию для шага.
func StepErrorCode(step StepName) ErrorCode {
	switch step {
	case StepTracking:
		return CodeTrackingFailed
	case StepTrackExtraction:
		return CodeExtractionFailed
	case StepSmoothing:
		return CodeSmoothingFailed
	case StepExport:
		return CodeExportFailed
	case StepPackaging:
		return CodePackagingFailed
	default:
		return CodeInternal
	}
}

// TaskError — запись об ошибке FAILED task.
type TaskError struct {
	// Kind — класс ошибки.
	Kind ErrorKind `json:"kind"`

	// Code — детальный код.
	Code ErrorCode `json:"code"`

	// Step — шаг, на котором произошла ошибка (если применимо).
	Step StepName `json:"step,omitempty"`

	// Message — человекочитаемое сообщение.
	Message string `json:"message"`
}

// Error реализует интерфейс error.
func (e *TaskError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s (%s) at %s: %s", e.Kind, e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

// InternalError создаёт TaskError класса INTERNAL_ERROR.
func InternalError(msg string) *TaskError {
	return &TaskError{Kind: ErrorKindInternal, Code: CodeInternal, Message: msg}
}
