package mqttcoord

import (
	"testing"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
)

func newTestTracker(timeout time.Duration) *FeedbackTracker {
	return NewFeedbackTracker(timeout, logging.Default())
}

func TestFeedbackTracker_DisabledByDefault(t *testing.T) {
	tr := newTestTracker(50 * time.Millisecond)
	tr.TrackPublishedMessage("room1/motor")
	if tr.PendingCount() != 0 {
		t.Error("tracking should be a no-op before EnableFeedbackTracking")
	}
}

func TestFeedbackTracker_TrackAndResolveOK(t *testing.T) {
	tr := newTestTracker(200 * time.Millisecond)
	tr.EnableFeedbackTracking()
	tr.TrackPublishedMessage("room1/motor")

	if tr.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", tr.PendingCount())
	}

	tr.HandleFeedbackMessage("room1/motor/feedback", "OK")

	if tr.PendingCount() != 0 {
		t.Error("resolved feedback should be removed from pending")
	}
}

func TestFeedbackTracker_ResolveError(t *testing.T) {
	tr := newTestTracker(200 * time.Millisecond)
	tr.EnableFeedbackTracking()
	tr.TrackPublishedMessage("room1/light")
	tr.HandleFeedbackMessage("room1/light/feedback", "ERROR:limit")

	if tr.PendingCount() != 0 {
		t.Error("error feedback should still resolve and remove the pending record")
	}
}

func TestFeedbackTracker_Timeout(t *testing.T) {
	tr := newTestTracker(20 * time.Millisecond)
	tr.EnableFeedbackTracking()
	tr.TrackPublishedMessage("room1/motor")

	time.Sleep(60 * time.Millisecond)

	if tr.PendingCount() != 0 {
		t.Error("pending record should be cleared once the timeout fires")
	}
}

func TestFeedbackTracker_Supersede(t *testing.T) {
	tr := newTestTracker(200 * time.Millisecond)
	tr.EnableFeedbackTracking()

	tr.TrackPublishedMessage("room1/motor")
	time.Sleep(100 * time.Millisecond)
	tr.TrackPublishedMessage("room1/motor") // supersedes the first record

	time.Sleep(150 * time.Millisecond) // first record's deadline passes
	if tr.PendingCount() != 1 {
		t.Error("superseding record should still be pending after the first deadline")
	}

	tr.HandleFeedbackMessage("room1/motor/feedback", "OK")
	if tr.PendingCount() != 0 {
		t.Error("second record should resolve normally")
	}
}

func TestFeedbackTracker_SkipsAudioVideoStatus(t *testing.T) {
	tr := newTestTracker(50 * time.Millisecond)
	tr.EnableFeedbackTracking()

	tr.TrackPublishedMessage("room1/audio")
	tr.TrackPublishedMessage("room1/video")
	tr.TrackPublishedMessage("devices/esp32_07/status")

	if tr.PendingCount() != 0 {
		t.Error("audio/video/status topics should never arm feedback tracking")
	}
}

func TestFeedbackTracker_DisableWarnsPending(t *testing.T) {
	tr := newTestTracker(5 * time.Second)
	tr.EnableFeedbackTracking()
	tr.TrackPublishedMessage("room1/motor")

	if tr.PendingCount() != 1 {
		t.Fatal("expected one pending record before disable")
	}

	tr.DisableFeedbackTracking()

	if tr.PendingCount() != 0 {
		t.Error("disable should clear all pending records")
	}
}

func TestFeedbackTracker_UnmatchedFeedbackIgnored(t *testing.T) {
	tr := newTestTracker(200 * time.Millisecond)
	tr.EnableFeedbackTracking()
	tr.HandleFeedbackMessage("room1/unrelated/feedback", "OK")
	if tr.PendingCount() != 0 {
		t.Error("unmatched feedback should not create or remove anything")
	}
}
