package mqttcoord

import (
	"strings"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
)

// EventSink receives MQTT traffic that the router could not resolve against
// the Device Registry, Feedback Tracker, or the scene-trigger shortcut. The
// Scene Runner's Transition Manager implements this to turn arbitrary room
// traffic into mqttMessage transition events.
type EventSink interface {
	EnqueueMQTTMessage(topic string, payload []byte)
}

// Router dispatches an incoming MQTT message to exactly one destination,
// in the fixed priority order described by the topic contract.
type Router struct {
	devices   *DeviceRegistry
	feedback  *FeedbackTracker
	sink      EventSink
	onTrigger func(topic string)
	log       *logging.Logger
}

// NewRouter creates a Router wired to the given Device Registry, Feedback
// Tracker, and event sink. onTrigger is called when a <room>/scene START
// message arrives; the router passes the triggering topic along so the
// caller can tell which room fired if it serves more than one.
func NewRouter(devices *DeviceRegistry, feedback *FeedbackTracker, sink EventSink, onTrigger func(topic string), log *logging.Logger) *Router {
	return &Router{
		devices:   devices,
		feedback:  feedback,
		sink:      sink,
		onTrigger: onTrigger,
		log:       log,
	}
}

// Route dispatches one message. retained is forwarded to the Device
// Registry so it can apply the stale-retained-online rule.
func (r *Router) Route(topic string, payload []byte, retained bool) {
	switch {
	case deviceStatusRe.MatchString(topic):
		deviceID := deviceIDFromStatusTopic(topic)
		if deviceID == "" {
			r.log.Debug("malformed device status topic", "topic", topic)
			return
		}
		r.devices.UpdateDeviceStatus(deviceID, string(payload), retained)

	case strings.HasSuffix(topic, "/feedback"):
		r.feedback.HandleFeedbackMessage(topic, string(payload))

	case roomSceneRe.MatchString(topic) && strings.EqualFold(strings.TrimSpace(string(payload)), "START"):
		if r.onTrigger != nil {
			r.onTrigger(topic)
		}

	default:
		if r.sink != nil {
			r.sink.EnqueueMQTTMessage(topic, payload)
		}
	}
}

// deviceIDFromStatusTopic extracts "esp32_07" from "devices/esp32_07/status".
func deviceIDFromStatusTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}
