package media

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/webp"
)

// minFrameDelay is used for GIF frames that declare no delay.
const minFrameDelay = 20 * time.Millisecond

// Clip is a looping animation. It starts paused.
type Clip struct {
	frames []image.Image
	delays []time.Duration
	total  time.Duration

	mu        sync.Mutex
	playing   bool
	elapsed   time.Duration
	resumedAt time.Time
}

// Still returns a single-frame clip.
func Still(img image.Image) *Clip {
	return &Clip{frames: []image.Image{img}, delays: []time.Duration{0}}
}

// NewClip creates a clip from frames and per-frame delays.
func NewClip(frames []image.Image, delays []time.Duration) (*Clip, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("clip: no frames")
	}
	if len(delays) != len(frames) {
		return nil, fmt.Errorf("clip: %d frames but %d delays", len(frames), len(delays))
	}

	c := &Clip{frames: frames, delays: make([]time.Duration, len(delays))}
	for i, d := range delays {
		if d < minFrameDelay {
			d = minFrameDelay
		}
		c.delays[i] = d
		c.total += d
	}
	return c, nil
}

// LoadClip decodes an image file. GIFs become animations; PNG, JPEG, WebP
// and TGA files become stills.
func LoadClip(path string) (*Clip, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("clip: read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".gif") {
		return decodeGIF(raw)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("clip: decode %s: %w", path, ErrUnsupportedFormat)
	}
	return Still(img), nil
}

func decodeGIF(raw []byte) (*Clip, error) {
	g, err := gif.DecodeAll(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("clip: decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("clip: empty gif: %w", ErrUnsupportedFormat)
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}

	// Frames are deltas; composite them onto a running canvas.
	canvas := image.NewRGBA(bounds)
	frames := make([]image.Image, len(g.Image))
	delays := make([]time.Duration, len(g.Image))
	for i, p := range g.Image {
		var restore *image.RGBA
		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalPrevious {
			restore = cloneRGBA(canvas)
		}

		draw.Draw(canvas, p.Bounds(), p, p.Bounds().Min, draw.Over)
		frames[i] = cloneRGBA(canvas)
		if i < len(g.Delay) {
			delays[i] = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}

		if i < len(g.Disposal) {
			switch g.Disposal[i] {
			case gif.DisposalBackground:
				draw.Draw(canvas, p.Bounds(), image.Transparent, image.Point{}, draw.Src)
			case gif.DisposalPrevious:
				canvas = restore
			}
		}
	}

	if len(frames) == 1 {
		return Still(frames[0]), nil
	}
	return NewClip(frames, delays)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// Resume continues the loop from where it was paused.
func (c *Clip) Resume(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.playing = true
	c.resumedAt = now
}

// Pause freezes the loop on its current frame.
func (c *Clip) Pause(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.playing = false
	c.elapsed += now.Sub(c.resumedAt)
}

// Playing reports whether the loop is advancing.
func (c *Clip) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Len returns the number of frames.
func (c *Clip) Len() int {
	return len(c.frames)
}

// Frame returns the frame shown at now.
func (c *Clip) Frame(now time.Time) image.Image {
	return c.frames[c.index(now)]
}

func (c *Clip) index(now time.Time) int {
	if len(c.frames) == 1 || c.total <= 0 {
		return 0
	}

	c.mu.Lock()
	pos := c.elapsed
	if c.playing {
		pos += now.Sub(c.resumedAt)
	}
	c.mu.Unlock()

	pos %= c.total
	if pos < 0 {
		pos += c.total
	}
	for i, d := range c.delays {
		if pos < d {
			return i
		}
		pos -= d
	}
	return len(c.frames) - 1
}
