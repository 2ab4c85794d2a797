package mqtt

import "codeberg.org/mutker/solardash/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrConnectFailed  = errors.ErrInitFailed
	ErrPublishFailed  = errors.ErrorCode("mqtt_publish_failed")
	ErrPublishTimeout = errors.ErrTimeout
	ErrEncodeFailed   = errors.ErrorCode("mqtt_encode_failed")
	ErrInvalidPayload = errors.ErrorCode("mqtt_invalid_snapshot")
)
