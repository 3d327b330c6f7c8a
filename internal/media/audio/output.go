package audio

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
)

// sampleRate and channelCount are the PCM format every decoded stream is
// normalised to before reaching the mixer (ffmpeg does the resampling).
const (
	sampleRate   = 44100
	channelCount = 2
)

// outputContext owns the single oto.Context a process may create. oto
// multiplexes any number of concurrent Players onto the one hardware
// device, which is exactly the polyphony the RAM tier needs.
type outputContext struct {
	ctx *oto.Context
}

func newOutputContext() (*outputContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("creating audio output context: %w", err)
	}
	<-ready
	return &outputContext{ctx: ctx}, nil
}

// player wraps an oto.Player over a PCM stream so callers can treat it as
// a single-shot or long-running voice.
type player struct {
	p *oto.Player
}

func (o *outputContext) newPlayer(r io.Reader) *player {
	return &player{p: o.ctx.NewPlayer(r)}
}

func (p *player) Play()                { p.p.Play() }
func (p *player) Pause()               { p.p.Pause() }
func (p *player) IsPlaying() bool      { return p.p.IsPlaying() }
func (p *player) SetVolume(v float64)  { p.p.SetVolume(v) }
func (p *player) Close() error         { return p.p.Close() }
