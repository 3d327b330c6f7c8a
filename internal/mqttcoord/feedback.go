package mqttcoord

import (
	"strings"
	"sync"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
)

// pendingFeedback is one in-flight command awaiting a reply. generation lets
// a timeout callback recognise it has been superseded by a later publish to
// the same topic without needing to cancel a dangling timer thread.
type pendingFeedback struct {
	topic       string
	statusTopic string
	issuedAt    time.Time
	generation  uint64
}

// FeedbackTracker arms a deadline for every command publish that expects a
// reply on a derived "/feedback" topic, and resolves it against incoming
// feedback messages. Tracking is only active while a scene is running.
//
// Safe for concurrent use; a single mutex guards all pending state so that
// "supersede" and "timeout fires" can never race.
type FeedbackTracker struct {
	mu       sync.Mutex
	enabled  bool
	pending  map[string]*pendingFeedback // keyed by topic
	nextGen  uint64
	timeout  time.Duration
	log      *logging.Logger
	now      func() time.Time
	afterFun func(time.Duration, func()) *time.Timer
}

// NewFeedbackTracker creates a tracker with the given feedback deadline.
func NewFeedbackTracker(timeout time.Duration, log *logging.Logger) *FeedbackTracker {
	return &FeedbackTracker{
		pending:  make(map[string]*pendingFeedback),
		timeout:  timeout,
		log:      log,
		now:      time.Now,
		afterFun: time.AfterFunc,
	}
}

// EnableFeedbackTracking turns tracking on for the duration of a scene run,
// clearing any stale state from a previous run.
func (t *FeedbackTracker) EnableFeedbackTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		return
	}
	t.enabled = true
	t.pending = make(map[string]*pendingFeedback)
	t.log.Debug("feedback tracking enabled")
}

// DisableFeedbackTracking turns tracking off, warning once for each record
// that never resolved.
func (t *FeedbackTracker) DisableFeedbackTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.enabled = false
	for topic := range t.pending {
		t.log.Warn("scene ended with pending feedback", "topic", topic)
	}
	t.pending = make(map[string]*pendingFeedback)
	t.log.Debug("feedback tracking disabled")
}

// TrackPublishedMessage arms a feedback deadline for topic if it is a
// command bucket that expects a reply. A second call for the same topic
// supersedes the first: the earlier timer becomes a no-op when it fires.
func (t *FeedbackTracker) TrackPublishedMessage(topic string) {
	statusTopic, expectsFeedback := t.expectedFeedbackTopic(topic)
	if !expectsFeedback {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}

	t.nextGen++
	gen := t.nextGen
	rec := &pendingFeedback{
		topic:       topic,
		statusTopic: statusTopic,
		issuedAt:    t.now(),
		generation:  gen,
	}
	t.pending[topic] = rec

	t.log.Debug("sent, expecting feedback", "topic", topic, "status_topic", statusTopic)

	t.afterFun(t.timeout, func() { t.onTimeout(topic, gen) })
}

// expectedFeedbackTopic filters out audio/video/status topics (handled
// locally, or already feedback themselves) before deferring to the shared
// topic contract for the reply topic.
func (t *FeedbackTracker) expectedFeedbackTopic(topic string) (string, bool) {
	if strings.HasSuffix(topic, "/audio") || strings.HasSuffix(topic, "/video") {
		return "", false
	}
	if strings.Contains(topic, "/status") {
		return "", false
	}
	return ExpectedFeedbackTopic(topic)
}

func (t *FeedbackTracker) onTimeout(topic string, generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}
	rec, ok := t.pending[topic]
	if !ok || rec.generation != generation {
		return // superseded or already resolved
	}

	elapsed := t.now().Sub(rec.issuedAt)
	t.log.Warn("Feedback TIMEOUT", "topic", topic, "elapsed", elapsed)
	delete(t.pending, topic)
}

// HandleFeedbackMessage resolves the first pending record whose derived
// status topic matches, logging OK at info level and anything else as a
// warning. An unmatched feedback message is not an error.
func (t *FeedbackTracker) HandleFeedbackMessage(statusTopic, payload string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}

	var matched string
	for topic, rec := range t.pending {
		if rec.statusTopic == statusTopic {
			elapsed := t.now().Sub(rec.issuedAt)
			if strings.EqualFold(payload, "OK") {
				t.log.Info("Feedback OK", "topic", topic, "elapsed", elapsed)
			} else {
				t.log.Warn("Feedback ERROR", "topic", topic, "payload", payload, "elapsed", elapsed)
			}
			matched = topic
			break
		}
	}

	if matched != "" {
		delete(t.pending, matched)
	} else {
		t.log.Debug("unexpected feedback", "status_topic", statusTopic, "payload", payload)
	}
}

// PendingCount reports how many commands are currently awaiting feedback.
// Exposed for tests and dashboard diagnostics.
func (t *FeedbackTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
