package show

import (
	"fmt"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
)

// MQTTClient is the interface the executor needs to publish scene actions.
// mqttcoord.Client satisfies this.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishStop() error
}

// AudioPlayer is the interface the executor needs to drive the Audio Engine.
type AudioPlayer interface {
	Command(message string) error
	Stop()
}

// VideoPlayer is the interface the executor needs to drive the Video Engine.
type VideoPlayer interface {
	Command(message string) error
	Stop()
}

// Executor runs a state's actions against the room's live actuators. A
// single action's failure is logged and never aborts the rest of the list:
// scene authoring errors are fatal to the scene at load time (schema
// validation); runtime environmental errors degrade gracefully.
type Executor struct {
	mqtt  MQTTClient
	audio AudioPlayer
	video VideoPlayer
	log   *logging.Logger
}

// NewExecutor creates an Executor wired to the room's actuators.
func NewExecutor(mqtt MQTTClient, audio AudioPlayer, video VideoPlayer, log *logging.Logger) *Executor {
	return &Executor{mqtt: mqtt, audio: audio, video: video, log: log}
}

// ExecuteAll runs actions in source order, logging but not stopping on a
// single action's failure.
func (e *Executor) ExecuteAll(actions []Action) {
	for _, a := range actions {
		if err := e.execute(a); err != nil {
			e.log.Warn("action failed", "type", a.Type, "error", err)
		}
	}
}

func (e *Executor) execute(a Action) error {
	switch a.Type {
	case ActionMQTT:
		return e.mqtt.Publish(a.Topic, []byte(a.Message), 0, a.Retain)
	case ActionAudio:
		return e.audio.Command(string(a.Message))
	case ActionVideo:
		return e.video.Command(string(a.Message))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
}

// StopMedia halts audio and video immediately. Called when a scene ends,
// whatever the path: normal completion, explicit stop, or emergency preemption.
func (e *Executor) StopMedia() {
	e.audio.Stop()
	e.video.Stop()
}
