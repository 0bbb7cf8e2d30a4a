package ticket

// ErrorCode is a stable machine-readable failure classification. These are
// part of the API contract and never change meaning.
type ErrorCode string

const (
	CodeInvalidImage ErrorCode = "INVALID_IMAGE"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeInternal     ErrorCode = "INTERNAL"
)

// ProcessingInfo records what the pipeline actually attempted, regardless of
// outcome.
type ProcessingInfo struct {
	TotalTimeMS           int64    `json:"total_time_ms"`
	PreprocessingVariants []string `json:"preprocessing_variants"`
	EnginesTried          []string `json:"engines_tried"`
	MLPredictionUsed      bool     `json:"ml_prediction_used"`
}

// ResultError is the error branch of a scan result. No stack traces or
// internal identifiers leak through it.
type ResultError struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
}

// Result is the response shape for one scanned image. Exactly one of the
// success branch fields or Error is populated.
type Result struct {
	Success        bool              `json:"success"`
	BarcodeData    string            `json:"barcode_data,omitempty"`
	Format         string            `json:"format,omitempty"`
	Confidence     float64           `json:"confidence"`
	Provider       string            `json:"provider,omitempty"`
	ParsedData     map[string]string `json:"parsed_data,omitempty"`
	ChecksumValid  *bool             `json:"checksum_valid,omitempty"`
	ProcessingInfo ProcessingInfo    `json:"processing_info"`
	Error          *ResultError      `json:"error,omitempty"`
}

func errorResult(code ErrorCode, message string, info ProcessingInfo) Result {
	return Result{
		Success:        false,
		ProcessingInfo: info,
		Error: &ResultError{
			Message: message,
			Code:    code,
		},
	}
}
