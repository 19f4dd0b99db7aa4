package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter  ErrorCode = 100
	ErrCodeInvalidIdentifier ErrorCode = 101
	ErrCodeInvalidCommand    ErrorCode = 102
	ErrCodeInvalidOrder      ErrorCode = 103
	ErrCodeInvalidTransition ErrorCode = 104

	// Persistence errors (200-299)
	ErrCodeStoreUnavailable ErrorCode = 200
	ErrCodeWriteRejected    ErrorCode = 201
	ErrCodeReadFailed       ErrorCode = 202
	ErrCodeFlushFailed      ErrorCode = 203
	ErrCodeEncodingFailed   ErrorCode = 204

	// Handler/dispatch errors (300-399)
	ErrCodeHandlerFailed     ErrorCode = 300
	ErrCodeHandlerPanic      ErrorCode = 301
	ErrCodeUnroutableMessage ErrorCode = 302
	ErrCodeQueueClosed       ErrorCode = 303

	// Lifecycle errors (400-499)
	ErrCodeInvalidLifecycleState ErrorCode = 400
	ErrCodeAlreadyDisposed       ErrorCode = 401
	ErrCodeNotAccepting          ErrorCode = 402

	// Residual state errors (500-599)
	ErrCodeResidualState ErrorCode = 500

	// Configuration errors (600-699)
	ErrCodeInvalidConfiguration ErrorCode = 600
	ErrCodeConfigReadFailed     ErrorCode = 601
)

// IsPersistence reports whether the code belongs to the persistence range.
func (c ErrorCode) IsPersistence() bool {
	return c >= 200 && c < 300
}

// IsLifecycle reports whether the code belongs to the lifecycle range.
func (c ErrorCode) IsLifecycle() bool {
	return c >= 400 && c < 500
}
