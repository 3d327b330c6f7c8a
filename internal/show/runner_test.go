package show

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/history"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/database"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
)

const runsSchema = `
CREATE TABLE scene_runs (
	id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL,
	scene_id TEXT NOT NULL,
	trigger TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	duration_seconds REAL,
	final_state TEXT,
	detail TEXT
);
`

func openTestHistory(t *testing.T) history.Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runner_test.db")
	db, err := database.Open(database.Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if _, err := db.ExecContext(context.Background(), runsSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return history.NewSQLiteRepository(db.DB)
}

type fakeMQTT struct {
	mu          sync.Mutex
	published   []string
	stopPublished int
}

func (f *fakeMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic+"="+string(payload))
	return nil
}

func (f *fakeMQTT) PublishStop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopPublished++
	return nil
}

func (f *fakeMQTT) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopPublished
}

type fakeMedia struct {
	mu       sync.Mutex
	commands []string
	stops    int
}

func (f *fakeMedia) Command(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, message)
	return nil
}

func (f *fakeMedia) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeMedia) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeFeedback struct {
	mu       sync.Mutex
	enabled  int
	disabled int
}

func (f *fakeFeedback) EnableFeedbackTracking() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled++
}

func (f *fakeFeedback) DisableFeedbackTracking() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled++
}

func newTestRunner(t *testing.T) (*Runner, *fakeMQTT, *fakeMedia, *fakeMedia, *fakeFeedback) {
	t.Helper()
	mqtt := &fakeMQTT{}
	audio := &fakeMedia{}
	video := &fakeMedia{}
	fb := &fakeFeedback{}
	log := logging.Default()
	exec := NewExecutor(mqtt, audio, video, log)
	hist := openTestHistory(t)
	runner := NewRunner("room1", exec, fb, mqtt, hist, nil, nil, nil, log)
	return runner, mqtt, audio, video, fb
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// Scenario A: a state's "always" transition reaches END without an explicit
// STOP action in the scene; the runner still publishes room stop exactly
// once and halts media, per the uniform END contract.
func TestRunner_AlwaysTransitionToEnd(t *testing.T) {
	scene := &Scene{
		SceneID:      "scene-a",
		InitialState: "intro",
		States: map[string]State{
			"intro": {
				Transitions: []Transition{{Type: TransitionAlways, Goto: EndState}},
			},
		},
	}
	runner, mqtt, audio, video, fb := newTestRunner(t)
	tm := NewTransitionManager()

	if err := runner.StartScene(context.Background(), scene, tm, "button"); err != nil {
		t.Fatalf("StartScene() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return !runner.IsRunning() })

	if got := mqtt.stopCount(); got != 1 {
		t.Errorf("stopCount = %d, want 1", got)
	}
	if got := audio.stopCount(); got != 1 {
		t.Errorf("audio stopCount = %d, want 1", got)
	}
	if got := video.stopCount(); got != 1 {
		t.Errorf("video stopCount = %d, want 1", got)
	}
	if fb.enabled != 1 || fb.disabled != 1 {
		t.Errorf("feedback enable/disable = %d/%d, want 1/1", fb.enabled, fb.disabled)
	}
}

// A timeout transition to a normal (non-END) state runs onExit for the
// departing state and onEnter for the arriving one, and does not touch
// media or publish stop.
func TestRunner_TimeoutTransitionBetweenStates(t *testing.T) {
	scene := &Scene{
		SceneID:      "scene-b",
		InitialState: "first",
		States: map[string]State{
			"first": {
				OnExit:      []Action{{Type: ActionMQTT, Topic: "room1/light", Message: "OFF"}},
				Transitions: []Transition{{Type: TransitionTimeout, Delay: 0.05, Goto: "second"}},
			},
			"second": {
				OnEnter:     []Action{{Type: ActionMQTT, Topic: "room1/light", Message: "ON"}},
				Transitions: []Transition{{Type: TransitionAlways, Goto: EndState}},
			},
		},
	}
	runner, mqtt, _, _, _ := newTestRunner(t)
	tm := NewTransitionManager()

	if err := runner.StartScene(context.Background(), scene, tm, "button"); err != nil {
		t.Fatalf("StartScene() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return !runner.IsRunning() })

	mqtt.mu.Lock()
	defer mqtt.mu.Unlock()
	foundExit, foundEnter := false, false
	for _, p := range mqtt.published {
		if p == "room1/light=OFF" {
			foundExit = true
		}
		if p == "room1/light=ON" {
			foundEnter = true
		}
	}
	if !foundExit || !foundEnter {
		t.Errorf("published = %v, want OFF (onExit) and ON (onEnter) present", mqtt.published)
	}
}

// A second StartScene call while one is running is rejected with
// ErrSceneRunning and does not disturb the in-progress run.
func TestRunner_RejectsConcurrentStart(t *testing.T) {
	scene := &Scene{
		SceneID:      "scene-c",
		InitialState: "hold",
		States: map[string]State{
			"hold": {
				Transitions: []Transition{{Type: TransitionTimeout, Delay: 1, Goto: EndState}},
			},
		},
	}
	runner, _, _, _, _ := newTestRunner(t)
	tm := NewTransitionManager()

	if err := runner.StartScene(context.Background(), scene, tm, "button"); err != nil {
		t.Fatalf("first StartScene() error = %v", err)
	}

	err := runner.StartScene(context.Background(), scene, tm, "button")
	if err == nil {
		t.Fatal("second StartScene() error = nil, want ErrSceneRunning")
	}

	runner.Stop()
	waitFor(t, 2*time.Second, func() bool { return !runner.IsRunning() })
}

// Scenario E: a global event (emergency) preempts the active state,
// immediately reaching END regardless of the active state's own timeline
// or transitions.
func TestRunner_GlobalEventPreemptsToEnd(t *testing.T) {
	scene := &Scene{
		SceneID:      "scene-e",
		InitialState: "long_running",
		GlobalEvents: []Transition{
			{Type: TransitionMQTTMessage, Topic: "room1/emergency", Message: "ON", Goto: EndState},
		},
		States: map[string]State{
			"long_running": {
				Transitions: []Transition{{Type: TransitionTimeout, Delay: 60, Goto: EndState}},
			},
		},
	}
	runner, mqtt, _, _, _ := newTestRunner(t)
	tm := NewTransitionManager()

	if err := runner.StartScene(context.Background(), scene, tm, "button"); err != nil {
		t.Fatalf("StartScene() error = %v", err)
	}

	tm.EnqueueMQTTMessage("room1/emergency", []byte("ON"))

	waitFor(t, 2*time.Second, func() bool { return !runner.IsRunning() })

	if got := mqtt.stopCount(); got != 1 {
		t.Errorf("stopCount = %d, want 1", got)
	}
}

// Explicit Stop() also reaches the uniform END contract: media halted,
// room stop published once, run finalised as aborted.
func TestRunner_ExplicitStop(t *testing.T) {
	scene := &Scene{
		SceneID:      "scene-f",
		InitialState: "hold",
		States: map[string]State{
			"hold": {
				Transitions: []Transition{{Type: TransitionTimeout, Delay: 60, Goto: EndState}},
			},
		},
	}
	runner, mqtt, audio, video, _ := newTestRunner(t)
	tm := NewTransitionManager()

	if err := runner.StartScene(context.Background(), scene, tm, "button"); err != nil {
		t.Fatalf("StartScene() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	runner.Stop()

	waitFor(t, 2*time.Second, func() bool { return !runner.IsRunning() })

	if got := mqtt.stopCount(); got != 1 {
		t.Errorf("stopCount = %d, want 1", got)
	}
	if got := audio.stopCount(); got != 1 {
		t.Errorf("audio stopCount = %d, want 1", got)
	}
	if got := video.stopCount(); got != 1 {
		t.Errorf("video stopCount = %d, want 1", got)
	}
}

// Timeline items fire at most once per visit, in `at` order.
func TestRunner_TimelineItemsFireOnceInOrder(t *testing.T) {
	scene := &Scene{
		SceneID:      "scene-g",
		InitialState: "show",
		States: map[string]State{
			"show": {
				Timeline: []TimelineItem{
					{At: 0.15, Action: &Action{Type: ActionMQTT, Topic: "room1/effects", Message: "second"}},
					{At: 0.0, Action: &Action{Type: ActionMQTT, Topic: "room1/effects", Message: "first"}},
				},
				Transitions: []Transition{{Type: TransitionTimeout, Delay: 0.3, Goto: EndState}},
			},
		},
	}
	runner, mqtt, _, _, _ := newTestRunner(t)
	tm := NewTransitionManager()

	if err := runner.StartScene(context.Background(), scene, tm, "button"); err != nil {
		t.Fatalf("StartScene() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return !runner.IsRunning() })

	mqtt.mu.Lock()
	defer mqtt.mu.Unlock()
	var order []string
	for _, p := range mqtt.published {
		if p == "room1/effects=first" || p == "room1/effects=second" {
			order = append(order, p)
		}
	}
	if len(order) != 2 || order[0] != "room1/effects=first" || order[1] != "room1/effects=second" {
		t.Errorf("timeline firing order = %v, want [first, second]", order)
	}
}
