// Package mqttcoord wraps the transport-level MQTT client with the room
// controller's topic semantics: classification, payload validation, feedback
// tracking, device presence, and message routing into the scene runner.
package mqttcoord

import (
	"fmt"
	"regexp"
	"strings"
)

// Bucket names a topic's role in the contract. Every topic the controller
// publishes or subscribes to classifies into exactly one of these.
type Bucket string

const (
	BucketDeviceStatus Bucket = "device_status"
	BucketFeedback     Bucket = "feedback"
	BucketSceneStart   Bucket = "scene_start"
	BucketNamedScene   Bucket = "named_scene"
	BucketMotor        Bucket = "motor"
	BucketLight        Bucket = "light"
	BucketEffects      Bucket = "effects"
	BucketEmergency    Bucket = "emergency"
	BucketGlobalStop   Bucket = "global_stop"
	BucketRoomGeneric  Bucket = "room_generic"
	BucketUnknown      Bucket = "unknown"
)

var (
	roomPrefixRe     = regexp.MustCompile(`^room[\w-]+`)
	deviceStatusRe   = regexp.MustCompile(`^devices/[^/]+/status$`)
	roomFeedbackRe   = regexp.MustCompile(`^room[\w-]+/[^/]+(?:/[^/]+)*/feedback$`)
	roomSceneRe      = regexp.MustCompile(`^room[\w-]+/scene$`)
	roomStartSceneRe = regexp.MustCompile(`^room[\w-]+/start_scene$`)
	roomMotorRe      = regexp.MustCompile(`^room[\w-]+/motor(?:/.*)?$`)
	roomLightRe      = regexp.MustCompile(`^room[\w-]+/light(?:/.*)?$`)
	roomEffectsRe    = regexp.MustCompile(`^room[\w-]+/effects?(?:/.*)?$`)
	roomEmergencyRe  = regexp.MustCompile(`^room[\w-]+/emergency(?:/.*)?$`)

	motorSpeedRe = regexp.MustCompile(`^SPEED:\d{1,3}$`)
	motorOnRe    = regexp.MustCompile(`^ON:\d{1,3}:[LR](?::\d+)?$`)
)

// reservedRoomNamespaces are the first path segment after room<X>/ that carry
// dedicated buckets. A topic like room1/lightasdf (a reserved word with
// extra characters) is caught here rather than silently falling through to
// room_generic.
var reservedRoomNamespaces = []string{
	"light", "motor", "effect", "effects", "scene", "start_scene", "emergency",
}

// ClassifyTopic maps a topic string to its contract bucket.
func ClassifyTopic(topic string) Bucket {
	switch {
	case deviceStatusRe.MatchString(topic):
		return BucketDeviceStatus
	case roomFeedbackRe.MatchString(topic):
		return BucketFeedback
	case roomSceneRe.MatchString(topic):
		return BucketSceneStart
	case roomStartSceneRe.MatchString(topic):
		return BucketNamedScene
	case strings.HasSuffix(topic, "/STOP") && roomPrefixRe.MatchString(topic):
		return BucketGlobalStop
	case roomMotorRe.MatchString(topic):
		return BucketMotor
	case roomLightRe.MatchString(topic):
		return BucketLight
	case roomEffectsRe.MatchString(topic):
		return BucketEffects
	case roomEmergencyRe.MatchString(topic):
		return BucketEmergency
	case roomPrefixRe.MatchString(topic):
		return BucketRoomGeneric
	default:
		return BucketUnknown
	}
}

// ValidateTopic rejects malformed room topics: a namespace that begins with,
// but is not equal to, a reserved word (e.g. "room1/lightasdf" or
// "room1/effectsx") and would otherwise fall through to room_generic and
// silently never reach its intended actuator. Transposed-letter typos such
// as "room1/lihgt" do not begin with a reserved word and pass.
func ValidateTopic(topic string) error {
	if !roomPrefixRe.MatchString(topic) {
		return nil // devices/... and anything else is outside this guard
	}

	parts := strings.SplitN(topic, "/", 3)
	if len(parts) < 2 {
		return nil
	}
	ns := parts[1]

	bucket := ClassifyTopic(topic)
	if bucket != BucketUnknown && bucket != BucketRoomGeneric {
		return nil
	}

	for _, reserved := range reservedRoomNamespaces {
		if ns != reserved && strings.HasPrefix(ns, reserved) {
			return fmt.Errorf("%w: topic %q looks like a misspelled %q namespace", ErrMalformedTopic, topic, reserved)
		}
	}

	return nil
}

// ValidatePayloadForTopic checks a payload against the bucket-specific
// command language. Status, feedback, and generic room topics are permissive.
func ValidatePayloadForTopic(topic, payload string) error {
	bucket := ClassifyTopic(topic)
	msg := strings.ToUpper(strings.TrimSpace(payload))

	switch bucket {
	case BucketMotor:
		if isBasicCommand(msg) || motorSpeedRe.MatchString(msg) || motorOnRe.MatchString(msg) {
			return nil
		}
		return fmt.Errorf("%w: motor payload %q", ErrInvalidPayload, payload)

	case BucketLight, BucketEffects, BucketEmergency, BucketGlobalStop:
		if isBasicCommand(msg) || msg == "RESET" || msg == "BLINK" {
			return nil
		}
		return fmt.Errorf("%w: payload %q not valid for bucket %s", ErrInvalidPayload, payload, bucket)

	case BucketSceneStart:
		if msg != "START" {
			return fmt.Errorf("%w: scene_start payload must be START, got %q", ErrInvalidPayload, payload)
		}
		return nil

	case BucketNamedScene:
		if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(payload)), ".json") {
			return fmt.Errorf("%w: named_scene payload must name a .json file, got %q", ErrInvalidPayload, payload)
		}
		return nil

	default:
		return nil
	}
}

func isBasicCommand(msg string) bool {
	switch msg {
	case "ON", "OFF", "STOP":
		return true
	default:
		return false
	}
}

// ValidatePublish is the single gate a publisher should run a topic/payload
// pair through before handing it to the transport client. It combines topic
// shape validation with bucket-specific payload validation.
func ValidatePublish(topic, payload string) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	return ValidatePayloadForTopic(topic, payload)
}

// ExpectedFeedbackTopic derives the reply topic a command publish should be
// answered on. Only command buckets (motor, light, effects, room_generic)
// arm feedback tracking; status/feedback/stop topics never expect a reply.
func ExpectedFeedbackTopic(topic string) (string, bool) {
	switch ClassifyTopic(topic) {
	case BucketMotor, BucketLight, BucketEffects, BucketRoomGeneric:
		return topic + "/feedback", true
	default:
		return "", false
	}
}
