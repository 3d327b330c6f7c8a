package mqttcoord

import (
	"fmt"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/mqtt"
)

// Client wraps a transport-level mqtt.Client with this room's topic
// semantics: it arms the Device Registry, Feedback Tracker, and Router on
// connect, and runs every outbound publish through the topic contract
// before handing it to the transport.
type Client struct {
	transport *mqtt.Client
	devices   *DeviceRegistry
	feedback  *FeedbackTracker
	router    *Router
	roomTopic string
	log       *logging.Logger
}

// New wires a connected transport client to the room's Device Registry,
// Feedback Tracker, and Router, and subscribes to the fixed set of topics
// the contract requires: device presence (devices/+/status, with the
// retained flag passed through) and this room's own traffic (<room>/#),
// which also carries the room's feedback topics. Feedback published outside
// this room's namespace is not received.
func New(transport *mqtt.Client, roomID string, devices *DeviceRegistry, feedback *FeedbackTracker, router *Router, log *logging.Logger) (*Client, error) {
	c := &Client{
		transport: transport,
		devices:   devices,
		feedback:  feedback,
		router:    router,
		roomTopic: roomID,
		log:       log,
	}

	if err := transport.SubscribeRetained("devices/+/status", 1, c.handleDeviceStatus); err != nil {
		return nil, fmt.Errorf("subscribing to device status: %w", err)
	}
	if err := transport.Subscribe(roomID+"/#", 1, c.handleRoomMessage); err != nil {
		return nil, fmt.Errorf("subscribing to room topic: %w", err)
	}

	return c, nil
}

func (c *Client) handleDeviceStatus(topic string, payload []byte, retained bool) error {
	c.router.Route(topic, payload, retained)
	return nil
}

func (c *Client) handleRoomMessage(topic string, payload []byte) error {
	c.router.Route(topic, payload, false)
	return nil
}

// Publish validates topic and payload against the topic contract, arms
// feedback tracking if the command bucket expects a reply, and then hands
// the publish to the transport client. A validation failure never reaches
// the broker.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidatePublish(topic, string(payload)); err != nil {
		return err
	}

	if err := c.transport.Publish(topic, payload, qos, retained); err != nil {
		return err
	}

	c.feedback.TrackPublishedMessage(topic)
	return nil
}

// PublishStop publishes the room's global stop command. The global_stop
// bucket never arms feedback tracking, so this is fire-and-forget.
func (c *Client) PublishStop() error {
	return c.Publish(c.roomTopic+"/STOP", []byte("STOP"), 0, false)
}

// IsConnected reports the transport's current connection state.
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// Close disconnects the transport client.
func (c *Client) Close() error {
	return c.transport.Close()
}
