package handlers

// Error codes of the ErrorResponse envelope. Clients branch on these; the
// message next to them is German and meant for display.
const (
	// 400
	ErrCodeBadRequest   = "bad_request"
	ErrCodeInvalidEmail = "invalid_email"
	ErrCodeInvalidLink  = "invalid_link"
	// 401 and 403
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	// 404, 405 and 409
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeConflict         = "conflict"
	// 413 and 415 on wizard uploads
	ErrCodeFileTooLarge = "file_too_large"
	ErrCodeFileType     = "unsupported_file_type"
	// 422, carried by ValidationErrorResponse
	ErrCodeValidation = "validation_failed"
	// 429, written by the rate limiter
	ErrCodeRateLimited = "too_many_requests"

	// 5xx, one per failing operation.
	ErrCodeInternal     = "internal_error"
	ErrCodeListFailed   = "list_failed"
	ErrCodeSaveFailed   = "save_failed"
	ErrCodeSubmitFailed = "submit_failed"
	ErrCodeUploadFailed = "upload_failed"
	ErrCodeRemoveFailed = "remove_failed"
	ErrCodeLinkFailed   = "link_failed"
)

// msgInternal replaces the detail of every 5xx; the detail goes to the log.
const msgInternal = "Es ist ein interner Fehler aufgetreten. Bitte versuchen Sie es später erneut."
