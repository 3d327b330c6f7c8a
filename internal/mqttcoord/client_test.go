package mqttcoord

import (
	"testing"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/config"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/mqtt"
)

// testConfig returns a valid MQTT configuration for testing.
// Tests require a running broker at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883},
		QoS:    1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func newTestClient(t *testing.T, clientID string, onTrigger func(string)) (*Client, *mqtt.Client) {
	t.Helper()

	transport, err := mqtt.Connect(testConfig(), clientID)
	if err != nil {
		t.Fatalf("mqtt.Connect() error = %v", err)
	}

	log := logging.Default()
	devices := NewDeviceRegistry(180*time.Second, log)
	feedback := NewFeedbackTracker(time.Second, log)
	router := NewRouter(devices, feedback, nil, onTrigger, log)

	client, err := New(transport, "room1", devices, feedback, router, log)
	if err != nil {
		transport.Close()
		t.Fatalf("New() error = %v", err)
	}
	return client, transport
}

func TestNew_SubscribesDeviceStatusAndRoom(t *testing.T) {
	client, transport := newTestClient(t, "room1-coord-new", nil)
	defer client.Close()

	if !transport.HasSubscription("devices/+/status") {
		t.Error("expected subscription to devices/+/status")
	}
	if !transport.HasSubscription("room1/#") {
		t.Error("expected subscription to room1/#")
	}
}

func TestPublish_ValidationRejectsBadPayload(t *testing.T) {
	client, _ := newTestClient(t, "room1-coord-badpayload", nil)
	defer client.Close()

	err := client.Publish("room1/motor", []byte("SIDEWAYS"), 1, false)
	if err == nil {
		t.Error("Publish() with invalid motor payload should be rejected")
	}
}

func TestPublish_ValidCommandArmsFeedback(t *testing.T) {
	client, _ := newTestClient(t, "room1-coord-armfeedback", nil)
	defer client.Close()

	client.feedback.EnableFeedbackTracking()

	if err := client.Publish("room1/light", []byte("ON"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if client.feedback.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1 after a valid command publish", client.feedback.PendingCount())
	}
}

func TestPublishStop(t *testing.T) {
	client, _ := newTestClient(t, "room1-coord-stop", nil)
	defer client.Close()

	if err := client.PublishStop(); err != nil {
		t.Fatalf("PublishStop() error = %v", err)
	}
}

func TestDeviceStatusRoundtrip(t *testing.T) {
	client, transport := newTestClient(t, "room1-coord-devicestatus", nil)
	defer client.Close()

	time.Sleep(100 * time.Millisecond)

	if err := transport.PublishString("devices/esp32_07/status", "online", 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if len(client.devices.GetConnectedDevices()) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("device status message never reached the registry")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestSceneTrigger(t *testing.T) {
	triggered := make(chan string, 1)
	client, transport := newTestClient(t, "room1-coord-scenetrigger", func(topic string) { triggered <- topic })
	defer client.Close()

	time.Sleep(100 * time.Millisecond)

	if err := transport.PublishString("room1/scene", "START", 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case topic := <-triggered:
		if topic != "room1/scene" {
			t.Errorf("triggered topic = %q, want room1/scene", topic)
		}
	case <-time.After(2 * time.Second):
		t.Error("scene trigger callback was not invoked")
	}
}
