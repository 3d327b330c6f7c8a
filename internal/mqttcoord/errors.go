package mqttcoord

import "errors"

var (
	// ErrMalformedTopic indicates a topic looks like a typo of a reserved
	// namespace rather than a legitimate room_generic topic.
	ErrMalformedTopic = errors.New("mqttcoord: malformed topic")

	// ErrInvalidPayload indicates a payload does not match the command
	// language for its topic's bucket.
	ErrInvalidPayload = errors.New("mqttcoord: invalid payload")

	// ErrSceneAlreadyRunning names a scene-trigger that arrives while
	// another scene is in progress. No function in this package returns
	// it; the scene runner reports that case as show.ErrSceneRunning.
	ErrSceneAlreadyRunning = errors.New("mqttcoord: scene already running")

	// ErrUnknownDevice names a feedback or status message that references a
	// device that has never been seen. No function in this package returns
	// it: the Device Registry registers an unseen device, and the Feedback
	// Tracker logs unmatched feedback at debug level.
	ErrUnknownDevice = errors.New("mqttcoord: unknown device")
)
