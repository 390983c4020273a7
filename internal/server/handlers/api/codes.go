package api

const (
	// Generic request/server errors
	CodeInvalidRequest   = "E_INVALID_REQUEST"    // bad or invalid request
	CodeRateLimited      = "E_RATE_LIMITED"       // rate limit exceeded
	CodeInternalError    = "E_INTERNAL_ERROR"     // internal server error
	CodeNotFound         = "E_NOT_FOUND"          // no such route
	CodeMethodNotAllowed = "E_METHOD_NOT_ALLOWED" // route exists for another method

	// Auth errors
	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS" // token is invalid, expired, or malformed

	// Upload errors
	CodeUploadUnknownSession     = "E_UPLOAD_UNKNOWN_SESSION"      // session does not exist or has expired
	CodeUploadIndexOutOfRange    = "E_UPLOAD_INDEX_OUT_OF_RANGE"   // chunk index or chunk count does not fit the session
	CodeUploadIncomplete         = "E_UPLOAD_INCOMPLETE"           // complete called before every chunk arrived
	CodeUploadAssemblyInProgress = "E_UPLOAD_ASSEMBLY_IN_PROGRESS" // another complete call is assembling the session
	CodeUploadSessionClosed      = "E_UPLOAD_SESSION_CLOSED"       // session is complete or failed
	CodeUploadSizeMismatch       = "E_UPLOAD_SIZE_MISMATCH"        // received bytes differ from the declared length
	CodeUploadChecksumMismatch   = "E_UPLOAD_CHECKSUM_MISMATCH"    // received bytes differ from the declared sha256
	CodeUploadAssemblyFailed     = "E_UPLOAD_ASSEMBLY_FAILED"      // assembly failed, the session is terminal
	CodeUploadChunkFailed        = "E_UPLOAD_CHUNK_FAILED"         // chunk could not be stored, safe to retry
	CodeUploadRejected           = "E_UPLOAD_REJECTED"             // admission control refused the upload

	// File errors
	CodeFileNotFound = "E_FILE_NOT_FOUND" // no published file with that name
)
