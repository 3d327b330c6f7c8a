package show

import (
	"context"
	"sync"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/history"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
)

// tickInterval is the scene runner's nominal tick rate (~10 Hz).
const tickInterval = 100 * time.Millisecond

// FeedbackEnabler is the interface the runner needs from the Feedback
// Tracker: tracking is only active while a scene runs. mqttcoord.FeedbackTracker
// satisfies this.
type FeedbackEnabler interface {
	EnableFeedbackTracking()
	DisableFeedbackTracking()
}

// TelemetryWriter records a finished scene run's outcome for time-series
// observability. It is optional: a Runner with no TelemetryWriter simply
// skips this step. telemetry.Client satisfies this.
type TelemetryWriter interface {
	WriteSceneRun(roomID, sceneID, status string, durationSeconds float64)
}

// MediaEndPoller polls a media engine for playback that finished since the
// last tick. The poll call itself detects the end and queues the
// corresponding audioEnd/videoEnd event through the engine's end callback,
// so delivery is clocked by the tick loop. audio.Engine and video.Engine
// both satisfy this via PollEnded.
type MediaEndPoller interface {
	PollEnded()
}

// Runner drives one room's scene state machine: a single goroutine ticks at
// tickInterval, firing due timeline items, evaluating transitions in
// source order (per-state first, then global events), and executing
// onEnter/onExit actions. Scene admission ("is a scene running") and the
// cooperative stop flag are the only state touched from outside the
// runner's own goroutine, both mutex-guarded.
type Runner struct {
	roomID      string
	executor    *Executor
	feedback    FeedbackEnabler
	mqtt        MQTTClient
	history     history.Repository
	telemetry   TelemetryWriter
	audioPoller MediaEndPoller
	videoPoller MediaEndPoller
	log         *logging.Logger

	mu            sync.Mutex
	running       bool
	stopRequested bool
	currentRunID  string
	currentScene  *Scene
	currentRT     *Runtime
	runStartedAt  time.Time
}

// Progress is a point-in-time snapshot of the running scene, for dashboard
// status reporting.
type Progress struct {
	Running      bool
	RunID        string
	SceneID      string
	CurrentState string
	ElapsedSecs  float64
}

// Progress reports the current scene's position, or a zero Progress with
// Running false if no scene is active.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.currentRT == nil {
		return Progress{}
	}
	return Progress{
		Running:      true,
		RunID:        r.currentRunID,
		SceneID:      r.currentScene.SceneID,
		CurrentState: r.currentRT.CurrentState(),
		ElapsedSecs:  r.currentRT.ElapsedInState(time.Now()).Seconds(),
	}
}

// NewRunner creates a Runner for one room. telemetry may be nil: a room
// without time-series telemetry configured simply skips that write.
// audioPoller/videoPoller are polled once per tick (~10 Hz) so an
// audioEnd/videoEnd transition fires within one tick of the file actually
// ending; either may be nil in tests that don't exercise media.
func NewRunner(roomID string, executor *Executor, feedback FeedbackEnabler, mqtt MQTTClient, hist history.Repository, telemetry TelemetryWriter, audioPoller, videoPoller MediaEndPoller, log *logging.Logger) *Runner {
	return &Runner{
		roomID:      roomID,
		executor:    executor,
		feedback:    feedback,
		mqtt:        mqtt,
		history:     hist,
		telemetry:   telemetry,
		audioPoller: audioPoller,
		videoPoller: videoPoller,
		log:         log,
	}
}

// IsRunning reports whether a scene is currently in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// StartScene begins running scene in the background. It returns immediately
// once the scene is admitted; the scene itself runs until it reaches END or
// Stop is called. A second call while a scene is running is rejected.
func (r *Runner) StartScene(ctx context.Context, scene *Scene, transitions *TransitionManager, trigger string) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.log.Warn("scene start rejected: already running", "scene_id", scene.SceneID)
		return ErrSceneRunning
	}
	r.running = true
	r.stopRequested = false
	r.mu.Unlock()

	run := &history.Run{RoomID: r.roomID, SceneID: scene.SceneID, Trigger: trigger}
	if err := r.history.Start(ctx, run); err != nil {
		r.log.Warn("failed to record scene run start", "error", err)
	}
	r.mu.Lock()
	r.currentRunID = run.ID
	r.currentScene = scene
	r.runStartedAt = time.Now()
	r.mu.Unlock()

	r.feedback.EnableFeedbackTracking()

	rt := NewRuntime(scene)
	rt.Start(time.Now())

	r.mu.Lock()
	r.currentRT = rt
	r.mu.Unlock()

	r.log.Info("scene started", "scene_id", scene.SceneID, "trigger", trigger, "initial_state", rt.CurrentState())
	r.executor.ExecuteAll(rt.CurrentStateDef().OnEnter)

	go r.run(ctx, scene, rt, transitions)
	return nil
}

// Stop requests the running scene halt at the next tick. Cooperative: the
// tick loop observes the flag, runs no onExit for the state it is leaving,
// publishes the room stop command, and ends.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.stopRequested = true
	}
}

func (r *Runner) run(ctx context.Context, scene *Scene, rt *Runtime, transitions *TransitionManager) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.finish(scene, rt, "aborted", "controller shutdown")
			return
		case <-ticker.C:
			if r.shouldStop() {
				r.finish(scene, rt, "aborted", "stop requested")
				return
			}

			r.tick(scene, rt, transitions)

			if rt.Ended() {
				r.finish(scene, rt, "completed", EndState)
				return
			}
		}
	}
}

func (r *Runner) shouldStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopRequested
}

// tick fires due timeline items, evaluates transitions once (per-state
// transitions in source order, first match wins; global events only if no
// per-state transition matched), then polls the media engines for playback
// that ended since the last tick. Polling last, every tick, keeps an
// audioEnd/videoEnd transition within one tick of the file actually ending.
func (r *Runner) tick(scene *Scene, rt *Runtime, transitions *TransitionManager) {
	defer r.pollMedia()

	now := time.Now()
	elapsed := rt.ElapsedInState(now).Seconds()
	state := rt.CurrentStateDef()

	r.fireDueTimelineItems(rt, state, elapsed)

	events := transitions.Drain()

	if target, ok := firstMatch(state.Transitions, elapsed, events); ok {
		r.transitionTo(rt, state, target)
		return
	}
	if target, ok := firstMatch(scene.GlobalEvents, elapsed, events); ok {
		r.transitionTo(rt, state, target)
		return
	}
}

func (r *Runner) pollMedia() {
	if r.audioPoller != nil {
		r.audioPoller.PollEnded()
	}
	if r.videoPoller != nil {
		r.videoPoller.PollEnded()
	}
}

func (r *Runner) fireDueTimelineItems(rt *Runtime, state State, elapsed float64) {
	// Fire in `at` order (ties broken by source order); each item fires at
	// most once per visit.
	type due struct {
		idx  int
		item TimelineItem
	}
	var pending []due
	for i, item := range state.Timeline {
		if !rt.HasFired(i) && elapsed >= item.At {
			pending = append(pending, due{idx: i, item: item})
		}
	}
	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			if pending[j].item.At < pending[i].item.At {
				pending[i], pending[j] = pending[j], pending[i]
			}
		}
	}
	for _, d := range pending {
		r.executor.ExecuteAll(d.item.AllActions())
		rt.MarkFired(d.idx)
	}
}

func firstMatch(candidates []Transition, elapsed float64, events []RuntimeEvent) (string, bool) {
	for _, t := range candidates {
		if matchTransition(t, elapsed, events) {
			return t.Goto, true
		}
	}
	return "", false
}

// transitionTo moves the runtime to target. Reaching END always skips the
// departing state's onExit, publishes the room stop command, and halts
// media: END is the room's terminal, safe-idle contract regardless of which
// transition reached it. A transition to a normal state runs onExit first.
func (r *Runner) transitionTo(rt *Runtime, fromState State, target string) {
	now := time.Now()

	if target == EndState {
		rt.Goto(target, now)
		r.executor.StopMedia()
		if err := r.mqtt.PublishStop(); err != nil {
			r.log.Warn("failed to publish room stop", "error", err)
		}
		r.log.Info("scene reached END", "room_id", r.roomID)
		return
	}

	r.executor.ExecuteAll(fromState.OnExit)
	rt.Goto(target, now)
	r.log.Debug("state transition", "to", target)
	r.executor.ExecuteAll(rt.CurrentStateDef().OnEnter)
}

func (r *Runner) finish(scene *Scene, rt *Runtime, status, finalState string) {
	r.mu.Lock()
	runID := r.currentRunID
	startedAt := r.runStartedAt
	r.running = false
	r.stopRequested = false
	r.currentRunID = ""
	r.currentScene = nil
	r.currentRT = nil
	r.mu.Unlock()

	r.feedback.DisableFeedbackTracking()

	if status == "aborted" {
		rt.Goto(EndState, time.Now())
		r.executor.StopMedia()
		if err := r.mqtt.PublishStop(); err != nil {
			r.log.Warn("failed to publish room stop", "error", err)
		}
	}

	endedAt := time.Now().UTC()

	if runID != "" {
		detail := map[string]any{"state_history": rt.History()}
		if err := r.history.Finish(context.Background(), runID, status, finalState, endedAt, detail); err != nil {
			r.log.Warn("failed to record scene run end", "error", err)
		}
	}

	if r.telemetry != nil {
		r.telemetry.WriteSceneRun(r.roomID, scene.SceneID, status, endedAt.Sub(startedAt).Seconds())
	}

	r.log.Info("scene ended", "status", status, "final_state", finalState)
}
