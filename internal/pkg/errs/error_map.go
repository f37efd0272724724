package errs

import "net/http"

// errorMap holds the template for every known code. A zero Status means 200, matching
// the response envelope where the business code carries the failure.
var errorMap = map[int]CustomError{
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message must contain text or an image.", Status: http.StatusBadRequest},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrImageInvalid:          {Code: ErrImageInvalid, Message: "Unsupported image.", Status: http.StatusBadRequest},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Message: "Image must be at most %d MB.", Status: http.StatusBadRequest},
	ErrImageUploadsDisabled:  {Code: ErrImageUploadsDisabled, Message: "Image uploads are not available.", Status: http.StatusBadRequest},
	ErrUserNotFound:          {Code: ErrUserNotFound, Message: "Recipient user does not exist.", Status: http.StatusNotFound},
	ErrUserAlreadyExists:     {Code: ErrUserAlreadyExists, Message: "Email or username is already taken.", Status: http.StatusConflict},
	ErrMessagingBlocked:      {Code: ErrMessagingBlocked, Message: "You cannot message this user because one of you has blocked the other.", Status: http.StatusForbidden},

	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrForbidden:          {Code: ErrForbidden, Message: "You are not allowed to do that.", Status: http.StatusForbidden},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect email or password.", Status: http.StatusBadRequest},
	ErrInvalidPassword:    {Code: ErrInvalidPassword, Message: "Password must be between 6 and 72 characters.", Status: http.StatusBadRequest},
	ErrAuthentication:     {Code: ErrAuthentication, Message: "Connection could not be authenticated.", Status: http.StatusUnauthorized},

	ErrDeliveryFailed: {Code: ErrDeliveryFailed, Message: "Recipient connection is not open."},

	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrPersistenceFailed: {Code: ErrPersistenceFailed, Message: "Message could not be saved.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "Image upload failed. Please try again.", Status: http.StatusBadGateway},
}
