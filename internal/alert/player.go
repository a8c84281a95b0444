// Package alert plays a short sound through the default output device when
// the rider drops below the power target.
package alert

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// outputDevice is the part of a malgo playback device the player tears down.
type outputDevice interface {
	Uninit()
}

// Player plays one clip on demand. Alerts that arrive while the clip is
// still playing are dropped.
type Player struct {
	ctx  *malgo.AllocatedContext
	clip Clip

	mu      sync.Mutex
	device  outputDevice
	pos     int
	playing bool
}

// NewPlayer creates a player for clip. Call Close() when done.
func NewPlayer(clip Clip) (*Player, error) {
	if len(clip.Samples) == 0 || clip.SampleRate == 0 {
		return nil, fmt.Errorf("alert: empty clip")
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("alert: initializing audio context: %w", err)
	}
	return &Player{ctx: ctx, clip: clip}, nil
}

// Alert starts playback and returns immediately.
func (p *Player) Alert() {
	if err := p.start(); err != nil {
		slog.Warn("[ALERT] playback failed", "error", err)
	}
}

func (p *Player) start() error {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = true
	p.pos = 0
	p.mu.Unlock()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = p.clip.SampleRate

	done := make(chan struct{})
	var doneOnce sync.Once
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			if p.fill(pOutput, frameCount) {
				doneOnce.Do(func() { close(done) })
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, cfg, callbacks)
	if err != nil {
		p.setIdle()
		return fmt.Errorf("alert: initializing playback device: %w", err)
	}
	p.mu.Lock()
	p.device = device
	p.mu.Unlock()

	if err := device.Start(); err != nil {
		p.finish()
		return fmt.Errorf("alert: starting playback device: %w", err)
	}

	// A device must not be torn down from inside its own callback.
	go func() {
		<-done
		p.finish()
	}()
	return nil
}

// detach takes the device out of the player. Uninit waits for the data
// callback, which needs p.mu, so it must run after the lock is released.
func (p *Player) detach() outputDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.device
	p.device = nil
	return d
}

// finish releases the device after the clip has drained.
func (p *Player) finish() {
	if d := p.detach(); d != nil {
		d.Uninit()
	}
	p.setIdle()
}

func (p *Player) setIdle() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// fill copies the next frameCount samples into out and reports whether the
// clip is exhausted. Frames past the end are silence.
func (p *Player) fill(out []byte, frameCount uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := int(frameCount)
	remaining := len(p.clip.Samples) - p.pos
	if n > remaining {
		n = remaining
	}
	float32ToBytes(out, p.clip.Samples[p.pos:p.pos+n])
	for i := n * 4; i+4 <= len(out) && i < int(frameCount)*4; i += 4 {
		binary.LittleEndian.PutUint32(out[i:], 0)
	}
	p.pos += n
	return p.pos >= len(p.clip.Samples)
}

// Close releases all audio resources.
func (p *Player) Close() error {
	p.finish()

	if p.ctx != nil {
		if err := p.ctx.Uninit(); err != nil {
			return fmt.Errorf("alert: uninitializing audio context: %w", err)
		}
		p.ctx.Free()
		p.ctx = nil
	}
	return nil
}

// float32ToBytes writes samples into out as little-endian float32.
func float32ToBytes(out []byte, samples []float32) {
	for i, s := range samples {
		offset := i * 4
		if offset+4 > len(out) {
			return
		}
		binary.LittleEndian.PutUint32(out[offset:offset+4], math.Float32bits(s))
	}
}
