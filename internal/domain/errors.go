package domain

import "errors"

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrStoreUnavailable = errors.New("message store unavailable")
	ErrNotAuthor        = errors.New("only the author can change this message")
	ErrMessageDeleted   = errors.New("message is deleted")
	ErrEmptyMessage     = errors.New("message has neither text nor file")
	ErrMissingField     = errors.New("required field missing")
	ErrUnauthenticated  = errors.New("session is not authenticated")
)
