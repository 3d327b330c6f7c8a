// Package audio implements the room's Audio Engine: a two-tier mixer where
// short "sfx_"-prefixed effects are preloaded into RAM for low-latency
// polyphonic playback, and everything else streams from disk as the
// room's single background music voice.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
)

// sfxPrefix marks a file for RAM preloading; anything else is streamed.
const sfxPrefix = "sfx_"

// Config tunes the Audio Engine's resilience and defaults.
type Config struct {
	Dir             string
	FFmpegBinary    string
	FFprobeBinary   string
	MaxInitAttempts int
	InitRetryDelay  time.Duration
	DefaultVolume   float64
	PollInterval    time.Duration
}

// EndCallback is invoked when a playing file (RAM effect or streamed
// music) finishes on its own, never from an explicit Stop.
type EndCallback func(file string)

// Engine is the room's Audio Engine. Command implements show.AudioPlayer.
type Engine struct {
	cfg Config
	log *logging.Logger

	mu        sync.Mutex
	output    *outputContext
	available bool
	initTries int
	lastTry   time.Time

	soundCache map[string][]byte // RAM tier: filename -> decoded PCM

	music       *player // streaming tier: at most one voice
	musicFile   string
	musicWasOn  bool

	effects map[string][]*player // filename -> active RAM voices (polyphony)

	endCallback EndCallback
	stopPoll    chan struct{}
}

// NewEngine creates an Engine and attempts to initialise the output device.
// Initialisation failure is not fatal: the engine stays unavailable and
// retries lazily on the next command, matching the original mixer's
// bounded-retry resilience.
func NewEngine(cfg Config, log *logging.Logger) *Engine {
	if cfg.MaxInitAttempts <= 0 {
		cfg.MaxInitAttempts = 3
	}
	if cfg.InitRetryDelay <= 0 {
		cfg.InitRetryDelay = 5 * time.Second
	}
	if cfg.DefaultVolume <= 0 {
		cfg.DefaultVolume = 1.0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.FFmpegBinary == "" {
		cfg.FFmpegBinary = "ffmpeg"
	}
	if cfg.FFprobeBinary == "" {
		cfg.FFprobeBinary = "ffprobe"
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		soundCache: make(map[string][]byte),
		effects:    make(map[string][]*player),
	}
	e.tryInit()
	return e
}

func (e *Engine) tryInit() {
	e.initTries++
	e.lastTry = time.Now()

	out, err := newOutputContext()
	if err != nil {
		e.log.Error("audio initialization failed", "attempt", e.initTries, "error", err)
		e.available = false
		return
	}
	e.output = out
	e.available = true
	e.log.Info("audio initialized")
}

func (e *Engine) retryInitLocked() {
	if e.available {
		return
	}
	if e.initTries >= e.cfg.MaxInitAttempts {
		return
	}
	if time.Since(e.lastTry) < e.cfg.InitRetryDelay {
		return
	}
	e.log.Info("retrying audio initialization")
	e.tryInit()
}

// SetEndCallback registers the callback invoked when a track or effect
// finishes naturally. Wired to show.TransitionManager.EnqueueAudioEnd.
func (e *Engine) SetEndCallback(cb EndCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endCallback = cb
}

// PreloadForScene clears the RAM cache and preloads every "sfx_"-prefixed
// file named in files, mirroring the original mixer's per-scene preload
// pass: a scene always starts from a known, bounded RAM footprint.
func (e *Engine) PreloadForScene(ctx context.Context, files []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.retryInitLocked()
	if !e.available {
		return
	}

	e.stopAllLocked()
	cleared := len(e.soundCache)
	e.soundCache = make(map[string][]byte)

	loaded := 0
	for _, name := range files {
		if !strings.HasPrefix(strings.ToLower(name), sfxPrefix) {
			continue
		}
		resolved, full := e.resolveFile(name)
		if resolved == "" {
			continue
		}
		pcm, err := decodeToPCM(ctx, e.cfg.FFmpegBinary, full)
		if err != nil {
			e.log.Error("failed to preload sfx", "file", name, "error", err)
			continue
		}
		e.soundCache[resolved] = pcm
		loaded++
	}
	e.log.Info("audio preload complete", "loaded", loaded, "cleared", cleared)
}

// Command dispatches one message in the Audio Engine's command language:
// PLAY:<file>[:<volume>], STOP, STOP:<file>, PAUSE, RESUME, VOLUME:<v>, or
// a bare filename (equivalent to PLAY:<file>).
func (e *Engine) Command(message string) error {
	if message == "" {
		return fmt.Errorf("audio: empty command")
	}

	switch {
	case strings.HasPrefix(message, "PLAY:"):
		parts := strings.Split(message, ":")
		if len(parts) < 2 {
			return fmt.Errorf("audio: malformed PLAY command %q", message)
		}
		vol := e.cfg.DefaultVolume
		if len(parts) > 2 {
			if v, err := strconv.ParseFloat(parts[2], 64); err == nil {
				vol = clampVolume(v)
			}
		}
		return e.play(parts[1], vol)

	case message == "STOP":
		e.stopAll()
		return nil

	case strings.HasPrefix(message, "STOP:"):
		target := strings.TrimPrefix(message, "STOP:")
		return e.stopSpecific(target)

	case message == "PAUSE":
		return e.pauseAll()

	case message == "RESUME":
		return e.resumeAll()

	case strings.HasPrefix(message, "VOLUME:"):
		v, err := strconv.ParseFloat(strings.TrimPrefix(message, "VOLUME:"), 64)
		if err != nil {
			return fmt.Errorf("audio: malformed VOLUME command %q: %w", message, err)
		}
		return e.setMusicVolume(clampVolume(v))

	default:
		return e.play(message, e.cfg.DefaultVolume)
	}
}

// Stop implements show.AudioPlayer: silence, whatever is currently playing.
func (e *Engine) Stop() {
	e.stopAll()
}

func (e *Engine) play(filename string, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.retryInitLocked()
	if !e.available {
		return fmt.Errorf("audio: output unavailable")
	}

	resolved, full := e.resolveFile(filename)
	if resolved == "" {
		return fmt.Errorf("audio: file not found: %s", filename)
	}

	if pcm, ok := e.soundCache[resolved]; ok {
		p := e.output.newPlayer(bytes.NewReader(pcm))
		p.SetVolume(volume)
		p.Play()
		e.effects[resolved] = append(e.effects[resolved], p)
		e.log.Info("playing sfx (RAM)", "file", resolved, "volume", volume)
		return nil
	}

	if e.music != nil {
		e.music.Close()
	}
	pcm, err := decodeToPCM(context.Background(), e.cfg.FFmpegBinary, full)
	if err != nil {
		return fmt.Errorf("audio: streaming %s: %w", resolved, err)
	}
	p := e.output.newPlayer(bytes.NewReader(pcm))
	p.SetVolume(volume)
	p.Play()
	e.music = p
	e.musicFile = resolved
	e.musicWasOn = true
	e.log.Info("playing music (stream)", "file", resolved, "volume", volume)
	return nil
}

func (e *Engine) stopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopAllLocked()
}

func (e *Engine) stopAllLocked() {
	if e.music != nil {
		e.music.Close()
		e.music = nil
		e.musicFile = ""
		e.musicWasOn = false
	}
	for _, voices := range e.effects {
		for _, v := range voices {
			v.Close()
		}
	}
	e.effects = make(map[string][]*player)
	e.log.Info("stopped all audio")
}

func (e *Engine) stopSpecific(filename string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, _ := e.resolveFile(filename)
	if resolved == "" {
		resolved = filename
	}

	if e.musicFile == resolved {
		e.music.Close()
		e.music = nil
		e.musicFile = ""
		e.musicWasOn = false
	}
	if voices, ok := e.effects[resolved]; ok {
		for _, v := range voices {
			v.Close()
		}
		delete(e.effects, resolved)
	}
	return nil
}

func (e *Engine) pauseAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.available {
		return fmt.Errorf("audio: output unavailable")
	}
	if e.music != nil {
		e.music.Pause()
	}
	for _, voices := range e.effects {
		for _, v := range voices {
			v.Pause()
		}
	}
	return nil
}

func (e *Engine) resumeAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.available {
		return fmt.Errorf("audio: output unavailable")
	}
	if e.music != nil {
		e.music.Play()
	}
	for _, voices := range e.effects {
		for _, v := range voices {
			v.Play()
		}
	}
	return nil
}

func (e *Engine) setMusicVolume(v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.available {
		return fmt.Errorf("audio: output unavailable")
	}
	if e.music != nil {
		e.music.SetVolume(v)
	}
	return nil
}

// PollEnded checks for falling "busy"->"idle" edges on the music voice and
// each active effect voice, firing the end callback for each and pruning
// voices that finished. Called once per tick by the scene runner
// (show.Runner.tick), matching the original mixer's check_if_ended design.
func (e *Engine) PollEnded() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.available {
		return
	}

	if e.music != nil {
		playing := e.music.IsPlaying()
		if e.musicWasOn && !playing {
			finished := e.musicFile
			e.music = nil
			e.musicFile = ""
			e.musicWasOn = false
			if e.endCallback != nil && finished != "" {
				e.endCallback(finished)
			}
		}
		e.musicWasOn = playing
	}

	for filename, voices := range e.effects {
		var stillPlaying []*player
		for _, v := range voices {
			if v.IsPlaying() {
				stillPlaying = append(stillPlaying, v)
			}
		}
		if len(stillPlaying) == 0 {
			delete(e.effects, filename)
			if e.endCallback != nil {
				e.endCallback(filename)
			}
		} else {
			e.effects[filename] = stillPlaying
		}
	}
}

// resolveFile finds filename under Dir, trying common extensions when
// none is given. Returns ("", "") if nothing matches.
func (e *Engine) resolveFile(filename string) (resolved, full string) {
	clean := strings.TrimPrefix(filename, "PLAY_")
	candidate := filepath.Join(e.cfg.Dir, clean)
	if _, err := os.Stat(candidate); err == nil {
		return clean, candidate
	}

	ext := filepath.Ext(clean)
	if ext == "" {
		base := clean
		for _, try := range []string{".mp3", ".wav", ".ogg"} {
			candidate = filepath.Join(e.cfg.Dir, base+try)
			if _, err := os.Stat(candidate); err == nil {
				return base + try, candidate
			}
		}
	}

	e.log.Warn("audio file not found", "file", filename)
	return "", ""
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
