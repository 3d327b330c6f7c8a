package show

import "fmt"

// TopicValidator is the Topic Contract's gate, injected so this package
// never has to import internal/mqttcoord: mqttcoord.ValidatePublish
// satisfies this signature directly.
type TopicValidator func(topic, payload string) error

// ValidateScene checks a loaded scene against the invariants the runner
// assumes hold for every scene it is handed: every action type and
// transition type is in the closed vocabulary, every goto target is END or
// a declared state, and every mqtt action's topic+message passes the Topic
// Contract (validatePublish is called on every mqtt action at load, same as
// on every outbound publish). This runs once at load time so the runner
// never has to handle an unreachable goto or a schema-invalid publish
// mid-scene; authoring errors are fatal to the scene, not the controller.
func ValidateScene(s *Scene, validatePublish TopicValidator) error {
	if s == nil {
		return ErrInvalidScene
	}
	if s.SceneID == "" {
		return fmt.Errorf("%w: missing sceneId", ErrInvalidScene)
	}
	if s.InitialState == "" {
		return fmt.Errorf("%w: missing initialState", ErrInvalidScene)
	}
	if _, ok := s.States[s.InitialState]; !ok {
		return fmt.Errorf("%w: initialState %q is not a declared state", ErrInvalidScene, s.InitialState)
	}

	for _, t := range s.GlobalEvents {
		if err := validateTransition(s, t); err != nil {
			return fmt.Errorf("globalEvents: %w", err)
		}
	}

	for name, st := range s.States {
		if err := validateState(s, name, st, validatePublish); err != nil {
			return fmt.Errorf("state %q: %w", name, err)
		}
	}

	return nil
}

func validateState(s *Scene, name string, st State, validatePublish TopicValidator) error {
	for i, a := range st.OnEnter {
		if err := validateAction(a, validatePublish); err != nil {
			return fmt.Errorf("onEnter[%d]: %w", i, err)
		}
	}
	for i, a := range st.OnExit {
		if err := validateAction(a, validatePublish); err != nil {
			return fmt.Errorf("onExit[%d]: %w", i, err)
		}
	}
	for i, item := range st.Timeline {
		actions := item.AllActions()
		if len(actions) == 0 {
			return fmt.Errorf("timeline[%d]: no action(s) declared", i)
		}
		for j, a := range actions {
			if err := validateAction(a, validatePublish); err != nil {
				return fmt.Errorf("timeline[%d].actions[%d]: %w", i, j, err)
			}
		}
	}
	for i, t := range st.Transitions {
		if err := validateTransition(s, t); err != nil {
			return fmt.Errorf("transitions[%d] (from %q): %w", i, name, err)
		}
	}
	return nil
}

func validateAction(a Action, validatePublish TopicValidator) error {
	switch a.Type {
	case ActionMQTT:
		if a.Topic == "" {
			return fmt.Errorf("%w: mqtt action missing topic", ErrInvalidScene)
		}
		if validatePublish != nil {
			if err := validatePublish(a.Topic, string(a.Message)); err != nil {
				return fmt.Errorf("%w: mqtt action %q: %v", ErrInvalidScene, a.Topic, err)
			}
		}
	case ActionAudio, ActionVideo:
		if a.Message == "" {
			return fmt.Errorf("%w: %s action missing message", ErrInvalidScene, a.Type)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	return nil
}

func validateTransition(s *Scene, t Transition) error {
	switch t.Type {
	case TransitionTimeout, TransitionAudioEnd, TransitionVideoEnd, TransitionMQTTMessage, TransitionAlways:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransition, t.Type)
	}

	if t.Type == TransitionMQTTMessage && t.Topic == "" {
		return fmt.Errorf("%w: mqttMessage transition missing topic", ErrInvalidScene)
	}

	if t.Goto != EndState {
		if _, ok := s.States[t.Goto]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownGoto, t.Goto)
		}
	}

	return nil
}
