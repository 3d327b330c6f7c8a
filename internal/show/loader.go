package show

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Loader reads and validates scene and command-bundle JSON from a fixed
// filesystem layout:
//
//	<RoomDir>/scenes/<room>/<name>.json
//	<RoomDir>/scenes/<room>/commands/<name>.json
type Loader struct {
	roomDir         string
	roomID          string
	validatePublish TopicValidator
}

// NewLoader creates a Loader rooted at roomDir for the given room.
// validatePublish gates every mqtt action's topic+message at load time,
// the same Topic Contract check every outbound publish runs through; it
// may be nil only in tests that don't care about topic validation.
func NewLoader(roomDir, roomID string, validatePublish TopicValidator) *Loader {
	return &Loader{roomDir: roomDir, roomID: roomID, validatePublish: validatePublish}
}

// LoadScene reads, parses, and validates a scene JSON file by name
// (without extension). A validation failure never reaches the caller as a
// runnable scene; the error identifies exactly what is wrong.
func (l *Loader) LoadScene(name string) (*Scene, error) {
	path := l.scenePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSceneNotFound, name)
		}
		return nil, fmt.Errorf("reading scene %q: %w", name, err)
	}

	var scene Scene
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %w", ErrInvalidScene, name, err)
	}

	if err := ValidateScene(&scene, l.validatePublish); err != nil {
		return nil, fmt.Errorf("scene %q: %w", name, err)
	}

	return &scene, nil
}

// SaveScene canonically pretty-prints scene to its file, preserving the
// round-trip law: save-then-load yields a semantically identical scene.
func (l *Loader) SaveScene(name string, scene *Scene) error {
	if err := ValidateScene(scene, l.validatePublish); err != nil {
		return err
	}

	data, err := json.MarshalIndent(scene, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling scene %q: %w", name, err)
	}

	path := l.scenePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating scene directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing scene %q: %w", name, err)
	}
	return nil
}

// CommandBundle is an ad-hoc list of actions published without a state
// machine, loaded from scenes/<room>/commands/<name>.json.
type CommandBundle struct {
	Actions []Action `json:"actions"`
}

// LoadCommand reads a command bundle by name.
func (l *Loader) LoadCommand(name string) (*CommandBundle, error) {
	path := filepath.Join(l.roomDir, "scenes", l.roomID, "commands", name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: command %s", ErrSceneNotFound, name)
		}
		return nil, fmt.Errorf("reading command %q: %w", name, err)
	}

	var bundle CommandBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: parsing command %q: %w", ErrInvalidScene, name, err)
	}
	for i, a := range bundle.Actions {
		if err := validateAction(a, l.validatePublish); err != nil {
			return nil, fmt.Errorf("command %q action[%d]: %w", name, i, err)
		}
	}

	return &bundle, nil
}

func (l *Loader) scenePath(name string) string {
	return filepath.Join(l.roomDir, "scenes", l.roomID, name+".json")
}
