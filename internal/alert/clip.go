package alert

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// DefaultSampleRate is used for generated tones.
const DefaultSampleRate = 44100

// fadeDuration ramps tones in and out to avoid clicks.
const fadeDuration = 5 * time.Millisecond

// Clip is mono float32 audio in [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate uint32
}

// Duration returns the playing time of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Tone generates a sine beep.
func Tone(frequency float64, d time.Duration, volume float64, sampleRate uint32) (Clip, error) {
	if frequency <= 0 || d <= 0 || sampleRate == 0 {
		return Clip{}, fmt.Errorf("alert: invalid tone %.0fHz for %v at %dHz", frequency, d, sampleRate)
	}
	if volume < 0 || volume > 1 {
		return Clip{}, fmt.Errorf("alert: volume %.2f outside [0, 1]", volume)
	}

	n := int(d.Seconds() * float64(sampleRate))
	fade := int(fadeDuration.Seconds() * float64(sampleRate))
	if fade*2 > n {
		fade = n / 2
	}

	samples := make([]float32, n)
	for i := range samples {
		gain := volume
		switch {
		case i < fade:
			gain *= float64(i) / float64(fade)
		case i >= n-fade:
			gain *= float64(n-1-i) / float64(fade)
		}
		samples[i] = float32(gain * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate)))
	}
	return Clip{Samples: samples, SampleRate: sampleRate}, nil
}

// LoadWAV decodes a PCM WAV file into a mono clip, averaging channels and
// scaling by volume.
func LoadWAV(path string, volume float64) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("alert: open sound: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("alert: %s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("alert: decode WAV: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return Clip{}, errors.New("alert: WAV has no channels")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return Clip{}, fmt.Errorf("alert: unsupported bit depth %d", bitDepth)
	}
	scale := float64(int64(1) << (bitDepth - 1))
	channels := buf.Format.NumChannels

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = float32(volume * sum / float64(channels) / scale)
	}
	return Clip{Samples: samples, SampleRate: uint32(buf.Format.SampleRate)}, nil
}
