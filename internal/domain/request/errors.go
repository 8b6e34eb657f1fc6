package request

import "errors"

var (
	ErrInvalidStatus   = errors.New("invalid request status")
	ErrInvalidPriority = errors.New("invalid request priority")
	ErrInvalidLookup   = errors.New("invalid lookup kind")
	ErrMissingField    = errors.New("document missing required field")
	ErrInvalidField    = errors.New("document field has unexpected type")

	ErrRequestIDRequired = errors.New("request id is required")
	ErrRequestNotFound   = errors.New("request not found")
	ErrInvalidSchedule   = errors.New("schedule end must be after start")
	ErrReasonRequired    = errors.New("send back reason is required")

	ErrConnectivity = errors.New("remote store unavailable")
)
