/*
Package errs defines the application error codes and the CustomError type that carries them
across service, HTTP and websocket boundaries.
*/
package errs

// 1xxx: request handling
const (
	// ErrInvalidParams is the validation failure: malformed or missing input, rejected
	// before anything is persisted or delivered.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates the request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing data after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates the caller exceeded its request budget.
	ErrRateLimitExceeded = 1007
)

// 2xxx: messages and users
const (
	// ErrMessageContentTooLong indicates the text exceeds the maximum length.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates a message with neither text nor image.
	ErrMessageEmpty = 2202

	// ErrMessageNotFound indicates the referenced message does not exist.
	ErrMessageNotFound = 2203

	// ErrImageInvalid indicates the attached image could not be decoded or has a disallowed type.
	ErrImageInvalid = 2204

	// ErrFileSizeTooLarge indicates the attached image exceeds the size limit.
	ErrFileSizeTooLarge = 2205

	// ErrImageUploadsDisabled indicates no object storage is configured.
	ErrImageUploadsDisabled = 2206

	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = 2301

	// ErrUserAlreadyExists indicates the email or username is taken.
	ErrUserAlreadyExists = 2302

	// ErrMessagingBlocked indicates one party has blocked the other.
	ErrMessagingBlocked = 2303
)

// 3xxx: identity
const (
	// ErrUnauthorized indicates a missing or invalid session on an HTTP request.
	ErrUnauthorized = 3001

	// ErrForbidden indicates the caller may not act on the resource.
	ErrForbidden = 3002

	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = 3003

	// ErrInvalidPassword indicates the password does not meet the policy.
	ErrInvalidPassword = 3004

	// ErrAuthentication indicates a websocket handshake without a resolvable identity.
	ErrAuthentication = 3101
)

// 4xxx: live delivery
const (
	// ErrDeliveryFailed indicates the target connection is not open. Callers treat the
	// recipient as offline; it is never fatal.
	ErrDeliveryFailed = 4101
)

// 5xxx: internal
const (
	// ErrUnknown is an unclassified internal error.
	ErrUnknown = 5000

	// ErrPersistenceFailed indicates the message store rejected a write.
	ErrPersistenceFailed = 5101

	// ErrFileStorageFailed indicates the object store rejected an upload.
	ErrFileStorageFailed = 5102
)
