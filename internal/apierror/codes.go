package apierror

// Error type URIs following the urn:cyclesense:error:* pattern.
// These are used as the "type" field in RFC 9457 Problem Details.
const (
	// TypeValidation indicates request validation failed (400)
	TypeValidation = "urn:cyclesense:error:validation"

	// TypeConflict indicates a resource conflict (409)
	TypeConflict = "urn:cyclesense:error:conflict"

	// TypeRateLimit indicates too many requests (429)
	TypeRateLimit = "urn:cyclesense:error:rate_limit"

	// TypeUnauthorized indicates missing or invalid authentication (401)
	TypeUnauthorized = "urn:cyclesense:error:unauthorized"

	// TypeInternal indicates an unexpected server error (500)
	TypeInternal = "urn:cyclesense:error:internal"

	// TypeInvalidUUID indicates an invalid insight id in the request path (400)
	TypeInvalidUUID = "urn:cyclesense:error:invalid_uuid"

	// TypeFutureTimestamp indicates an id whose embedded time is too far ahead (400)
	TypeFutureTimestamp = "urn:cyclesense:error:future_timestamp"

	// TypeBadRequest indicates a malformed or invalid request (400)
	TypeBadRequest = "urn:cyclesense:error:bad_request"

	// TypeFeedbackExists indicates feedback was already recorded for the insight (409)
	TypeFeedbackExists = "urn:cyclesense:error:feedback_exists"

	// TypeFeedbackFailed indicates the feedback backend did not accept the rating (502)
	TypeFeedbackFailed = "urn:cyclesense:error:feedback_failed"
)

// Titles for each error type - human-readable summaries
const (
	TitleValidation      = "Validation Error"
	TitleConflict        = "Resource Conflict"
	TitleRateLimit       = "Rate Limit Exceeded"
	TitleUnauthorized    = "Authentication Required"
	TitleInternal        = "Internal Server Error"
	TitleInvalidUUID     = "Invalid UUID Format"
	TitleFutureTimestamp = "Future Timestamp Not Allowed"
	TitleBadRequest      = "Bad Request"
	TitleFeedbackExists  = "Feedback Already Submitted"
	TitleFeedbackFailed  = "Feedback Not Recorded"
)
