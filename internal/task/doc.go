// Package task turns an external command into a guarded operation.
//
// The child process receives the call identity in its environment:
//
//	SKIPIF_OUTPUT      the output location
//	SKIPIF_ARGS_HASH   decimal args hash
//	SKIPIF_CODE_HASH   decimal code hash
//
// A non-zero exit becomes an *ExitError. Which exit codes count as transient
// is decided by RetriableExitCodes, and WithRetry can re-run transient
// failures in-process before the guard records the outcome.
package task
