package show

import "time"

// Runtime holds one scene run's live state machine position: the current
// state, how long it has been current, which timeline items have already
// fired during this visit, and the visit history.
//
// Owned exclusively by the Scene Runner's tick loop; nothing else may
// mutate it (spec's concurrency model: MQTT/audio/video producers only
// enqueue events, the runner is the sole consumer and mutator).
type Runtime struct {
	scene     *Scene
	current   string
	enteredAt time.Time
	fired     map[int]bool
	history   []string
}

// NewRuntime creates a Runtime for scene, not yet started.
func NewRuntime(scene *Scene) *Runtime {
	return &Runtime{scene: scene}
}

// Start enters the scene's initial state.
func (r *Runtime) Start(now time.Time) {
	r.current = r.scene.InitialState
	r.enteredAt = now
	r.fired = make(map[int]bool)
	r.history = []string{r.current}
}

// CurrentState returns the state currently active.
func (r *Runtime) CurrentState() string {
	return r.current
}

// CurrentStateDef returns the definition of the state currently active.
// Returns the zero State if current is END (a sentinel, not a declared state).
func (r *Runtime) CurrentStateDef() State {
	return r.scene.States[r.current]
}

// ElapsedInState returns how long the runtime has been in its current state.
func (r *Runtime) ElapsedInState(now time.Time) time.Duration {
	return now.Sub(r.enteredAt)
}

// HasFired reports whether the timeline item at index idx has already
// fired during the current visit of the current state.
func (r *Runtime) HasFired(idx int) bool {
	return r.fired[idx]
}

// MarkFired records that the timeline item at index idx has fired.
func (r *Runtime) MarkFired(idx int) {
	r.fired[idx] = true
}

// Goto transitions to target, resetting the fired-item set (timeline items
// fire at most once per visit) and appending to the visit history.
func (r *Runtime) Goto(target string, now time.Time) {
	r.current = target
	r.enteredAt = now
	r.fired = make(map[int]bool)
	r.history = append(r.history, target)
}

// Ended reports whether the runtime has reached the terminal END state.
func (r *Runtime) Ended() bool {
	return r.current == EndState
}

// History returns a copy of the sequence of states visited so far.
func (r *Runtime) History() []string {
	out := make([]string, len(r.history))
	copy(out, r.history)
	return out
}
