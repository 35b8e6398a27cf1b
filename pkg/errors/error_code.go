package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown       ErrorCode = 1
	ErrCodeInternalError ErrorCode = 2

	// Validation errors (100-199)
	ErrCodeInvalidInput         ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeSchemaViolation      ErrorCode = 102
	ErrCodeInvalidParameter     ErrorCode = 103
	ErrCodeInvalidWindow        ErrorCode = 104
	ErrCodeMissingColumn        ErrorCode = 105

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound    ErrorCode = 200
	ErrCodeQueryFailed     ErrorCode = 201
	ErrCodePageWriteFailed ErrorCode = 202
	ErrCodePageReadFailed  ErrorCode = 203
	ErrCodeMarkerFailed    ErrorCode = 204

	// Condition and strategy errors (300-399)
	ErrCodeConditionNotFound   ErrorCode = 300
	ErrCodeConditionExists     ErrorCode = 301
	ErrCodeUnsupportedStrategy ErrorCode = 302
	ErrCodeStrategyBuildFailed ErrorCode = 303

	// Optimization errors (400-499)
	ErrCodeOptimizationFailure ErrorCode = 400
	ErrCodeTrialTimeout        ErrorCode = 401
	ErrCodeNoCompletedTrials   ErrorCode = 402

	// Pipeline errors (500-599)
	ErrCodeCancellationRequested ErrorCode = 500
	ErrCodeStageFailed           ErrorCode = 501
	ErrCodeUnknownStage          ErrorCode = 502
	ErrCodeIncompatibleVersion   ErrorCode = 503

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataParseFailed ErrorCode = 701
	ErrCodeInvalidTimeframe      ErrorCode = 702
	ErrCodeInvalidProvider       ErrorCode = 703
)
