package mqtt

import "errors"

// Errors returned by the bus client. The fleet package logs them and keeps
// the registry change that triggered the publish.
var (
	// ErrNotConnected is returned while the broker is unreachable.
	// Subscribe still records the subscription for the next reconnect.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the broker error that aborted Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed covers broker rejections, publish timeouts and
	// payloads over the size limit.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the broker refuses or times out
	// a subscription, or the handler is nil.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when the broker refuses or times out
	// an unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for a QoS level other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
