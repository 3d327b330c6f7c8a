package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// decodeToPCM runs ffmpeg out-of-process to transcode path (mp3/ogg/wav/...)
// to raw signed 16-bit little-endian PCM at sampleRate/channelCount, the
// format outputContext's players expect. This is the same division of
// labour pygame.mixer draws internally: format decode is somebody else's
// problem, the mixer only ever touches PCM.
func decodeToPCM(ctx context.Context, ffmpegBinary, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ffmpegBinary, //nolint:gosec // path is resolved against a fixed media directory, not user-supplied
		"-v", "error",
		"-i", path,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channelCount),
		"-",
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

// probeDuration asks ffprobe for a file's duration. Best-effort: a failure
// here never blocks playback, only end-of-track estimation.
func probeDuration(ctx context.Context, ffprobeBinary, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, ffprobeBinary, //nolint:gosec // path is resolved against a fixed media directory, not user-supplied
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probing duration of %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration of %s: %w", path, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
