// Package video implements the room's Video Engine: a single fullscreen
// player subprocess driven over a JSON IPC socket, supervised by
// internal/process for crash recovery.
package video

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
	"github.com/Wadanator/museum-system-sub000/internal/process"
)

// idleImageWidth/idleImageHeight size the black fallback image written to
// the configured idle image path when no file exists there. With no idle
// image path configured, no image is created.
const idleImageWidth, idleImageHeight = 1920, 1080

const ipcDialTimeout = 2 * time.Second
const ipcCommandTimeout = 2 * time.Second

// Config tunes the Video Engine's subprocess and IPC behaviour.
type Config struct {
	Dir                 string
	PlayerBinary        string
	IPCSocketPath       string
	IdleImagePath       string
	HealthCheckInterval time.Duration
	RestartCooldown     time.Duration
	MaxRestartAttempts  int
}

// EndCallback is invoked when the currently playing video reaches its end
// on its own, never from an explicit stop.
type EndCallback func(file string)

// Engine is the room's Video Engine. Command implements show.VideoPlayer.
type Engine struct {
	cfg Config
	log *logging.Logger
	mgr *process.Manager

	mu          sync.Mutex
	ipc         *ipcClient
	currentFile string
	wasPlaying  bool
	endCallback EndCallback
}

// NewEngine creates an Engine and starts its player subprocess.
func NewEngine(ctx context.Context, cfg Config, log *logging.Logger) (*Engine, error) {
	if cfg.PlayerBinary == "" {
		cfg.PlayerBinary = "mpv"
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 10 * time.Second
	}
	if cfg.RestartCooldown <= 0 {
		cfg.RestartCooldown = time.Minute
	}
	if cfg.MaxRestartAttempts <= 0 {
		cfg.MaxRestartAttempts = 5
	}

	e := &Engine{cfg: cfg, log: log}

	if cfg.IdleImagePath != "" {
		if err := ensureIdleImage(cfg.IdleImagePath); err != nil {
			log.Warn("failed to prepare idle image, starting without one", "error", err)
			e.cfg.IdleImagePath = ""
			cfg.IdleImagePath = ""
		}
	}

	args := []string{
		"--idle=yes",
		"--fullscreen",
		"--no-osc",
		"--no-input-default-bindings",
		"--input-ipc-server=" + cfg.IPCSocketPath,
	}
	if cfg.IdleImagePath != "" {
		args = append(args, cfg.IdleImagePath)
	}

	mgrCfg := process.DefaultConfig("video-player", cfg.PlayerBinary, args)
	mgrCfg.HealthCheckFunc = e.healthCheck
	mgrCfg.HealthCheckInterval = cfg.HealthCheckInterval
	mgrCfg.RestartDelay = cfg.RestartCooldown
	mgrCfg.MaxRestartAttempts = cfg.MaxRestartAttempts
	mgrCfg.OnStart = func() { e.onPlayerStart() }
	e.mgr = process.NewManager(mgrCfg)
	e.mgr.SetLogger(videoLoggerAdapter{log})

	if err := e.mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting video player: %w", err)
	}

	if err := e.connect(); err != nil {
		log.Warn("video player ipc not yet reachable", "error", err)
	}

	return e, nil
}

// ensureIdleImage makes sure path exists, creating a plain black image there
// if it does not. The player is always given something to show between
// videos; a missing idle image is an environment gap, not a fatal error.
func ensureIdleImage(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking idle image: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating idle image directory: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, idleImageWidth, idleImageHeight))
	for y := 0; y < idleImageHeight; y++ {
		for x := 0; x < idleImageWidth; x++ {
			img.Set(x, y, color.Black)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating idle image file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding idle image: %w", err)
	}
	return nil
}

func (e *Engine) onPlayerStart() {
	if err := e.connect(); err != nil {
		e.log.Warn("failed to reconnect video ipc after player start", "error", err)
	}
}

func (e *Engine) connect() error {
	deadline := time.Now().Add(3 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := dialIPC(e.cfg.IPCSocketPath, ipcDialTimeout)
		if err == nil {
			e.mu.Lock()
			if e.ipc != nil {
				e.ipc.close() //nolint:errcheck // best-effort close of stale connection
			}
			e.ipc = client
			e.mu.Unlock()
			return nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return lastErr
}

// healthCheck is process.Manager's HealthCheckFunc: the player is healthy
// as long as it answers its IPC socket.
func (e *Engine) healthCheck(ctx context.Context) error {
	e.mu.Lock()
	ipc := e.ipc
	e.mu.Unlock()
	if ipc == nil {
		return fmt.Errorf("video: ipc not connected")
	}
	_, err := ipc.send(ipcCommandTimeout, "get_property", "mpv-version")
	return err
}

// SetEndCallback registers the callback invoked when the playing video
// finishes naturally. Wired to show.TransitionManager.EnqueueVideoEnd.
func (e *Engine) SetEndCallback(cb EndCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endCallback = cb
}

// Command dispatches one message in the Video Engine's command language:
// PLAY_VIDEO:<file>, a bare filename, STOP_VIDEO, PAUSE, RESUME, or
// SEEK:<seconds>.
func (e *Engine) Command(message string) error {
	switch {
	case strings.HasPrefix(message, "PLAY_VIDEO:"):
		return e.play(strings.TrimPrefix(message, "PLAY_VIDEO:"))
	case message == "STOP_VIDEO":
		return e.stop()
	case message == "PAUSE":
		return e.setProperty("pause", true)
	case message == "RESUME":
		return e.setProperty("pause", false)
	case strings.HasPrefix(message, "SEEK:"):
		seconds, err := strconv.ParseFloat(strings.TrimPrefix(message, "SEEK:"), 64)
		if err != nil {
			return fmt.Errorf("video: malformed SEEK command %q: %w", message, err)
		}
		return e.seek(seconds)
	default:
		return e.play(message)
	}
}

// Stop implements show.VideoPlayer.
func (e *Engine) Stop() {
	if err := e.stop(); err != nil {
		e.log.Warn("failed to stop video", "error", err)
	}
}

func (e *Engine) play(filename string) error {
	e.mu.Lock()
	ipc := e.ipc
	e.mu.Unlock()
	if ipc == nil {
		return fmt.Errorf("video: player not connected")
	}

	full := filepath.Join(e.cfg.Dir, filename)
	if _, err := os.Stat(full); err != nil {
		return fmt.Errorf("video: file not found: %s", filename)
	}

	if _, err := ipc.send(ipcCommandTimeout, "loadfile", full, "replace"); err != nil {
		return fmt.Errorf("video: loading %s: %w", filename, err)
	}
	if _, err := ipc.send(ipcCommandTimeout, "set_property", "fullscreen", true); err != nil {
		e.log.Warn("failed to set fullscreen", "error", err)
	}

	e.mu.Lock()
	e.currentFile = filename
	e.wasPlaying = true
	e.mu.Unlock()

	e.log.Info("playing video", "file", filename)
	return nil
}

func (e *Engine) stop() error {
	e.mu.Lock()
	ipc := e.ipc
	e.currentFile = ""
	e.wasPlaying = false
	e.mu.Unlock()
	if ipc == nil {
		return nil
	}

	if e.cfg.IdleImagePath != "" {
		_, err := ipc.send(ipcCommandTimeout, "loadfile", e.cfg.IdleImagePath, "replace")
		return err
	}
	_, err := ipc.send(ipcCommandTimeout, "stop")
	return err
}

func (e *Engine) setProperty(name string, value any) error {
	e.mu.Lock()
	ipc := e.ipc
	e.mu.Unlock()
	if ipc == nil {
		return fmt.Errorf("video: player not connected")
	}
	_, err := ipc.send(ipcCommandTimeout, "set_property", name, value)
	return err
}

func (e *Engine) seek(seconds float64) error {
	e.mu.Lock()
	ipc := e.ipc
	e.mu.Unlock()
	if ipc == nil {
		return fmt.Errorf("video: player not connected")
	}
	_, err := ipc.send(ipcCommandTimeout, "seek", seconds, "absolute")
	return err
}

// PollEnded checks for a falling "busy"->"idle" edge and fires the end
// callback once when the current video finishes on its own. Called once per
// tick by the scene runner (show.Runner.tick).
func (e *Engine) PollEnded() {
	e.mu.Lock()
	ipc := e.ipc
	current := e.currentFile
	wasPlaying := e.wasPlaying
	e.mu.Unlock()

	if ipc == nil || current == "" || !wasPlaying {
		return
	}

	data, err := ipc.send(ipcCommandTimeout, "get_property", "idle-active")
	if err != nil {
		return
	}
	idle, _ := data.(bool)
	if !idle {
		return
	}

	e.mu.Lock()
	finished := e.currentFile
	e.currentFile = ""
	e.wasPlaying = false
	cb := e.endCallback
	e.mu.Unlock()

	if cb != nil && finished != "" {
		cb(finished)
	}
}

// Close stops the player subprocess.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.ipc != nil {
		e.ipc.close() //nolint:errcheck // best-effort close on shutdown
		e.ipc = nil
	}
	e.mu.Unlock()
	return e.mgr.Stop()
}

// videoLoggerAdapter satisfies process.Logger using *logging.Logger.
type videoLoggerAdapter struct {
	log *logging.Logger
}

func (a videoLoggerAdapter) Debug(msg string, args ...any) { a.log.Debug(msg, args...) }
func (a videoLoggerAdapter) Info(msg string, args ...any)  { a.log.Info(msg, args...) }
func (a videoLoggerAdapter) Warn(msg string, args ...any)  { a.log.Warn(msg, args...) }
func (a videoLoggerAdapter) Error(msg string, args ...any) { a.log.Error(msg, args...) }
