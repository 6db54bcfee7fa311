package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// MediaPipeEstimator implements Estimator using a Python MediaPipe subprocess.
//
// Frames are written to the subprocess stdin as a 4-byte big-endian length
// followed by JPEG bytes; detections come back on stdout as one JSON object
// per line. A reader goroutine delivers each line to the result callback.
type MediaPipeEstimator struct {
	// Script overrides the service script location. When empty the usual
	// locations are searched.
	Script string

	opts     Options
	logger   *slog.Logger
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	onResult ResultFunc
	mu       sync.Mutex
	started  bool
}

// NewMediaPipeEstimator creates a new MediaPipe estimator.
// The Python process is started by Init and restarted lazily by Send if it exits.
func NewMediaPipeEstimator(logger *slog.Logger) *MediaPipeEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaPipeEstimator{
		opts:   DefaultOptions(),
		logger: logger.With("component", "detector.mediapipe"),
	}
}

// Init locates the service script and starts the subprocess.
func (d *MediaPipeEstimator) Init(ctx context.Context, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.opts = opts
	return d.ensureStarted()
}

// OnResult registers the callback receiving detections.
func (d *MediaPipeEstimator) OnResult(fn ResultFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onResult = fn
}

// Send encodes the frame as JPEG and submits it to the subprocess.
func (d *MediaPipeEstimator) Send(frame image.Image) error {
	if frame == nil {
		return fmt.Errorf("send frame: nil image")
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return err
	}

	msg := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(data)), uint32(len(data)))
	msg = append(msg, data...)
	if _, err := d.stdin.Write(msg); err != nil {
		d.stopLocked()
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close shuts down the Python process.
func (d *MediaPipeEstimator) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *MediaPipeEstimator) ensureStarted() error {
	if d.started {
		return nil
	}

	scriptPath := d.Script
	if scriptPath != "" {
		if _, err := os.Stat(scriptPath); err != nil {
			return fmt.Errorf("%s: %w", scriptPath, ErrEstimatorUnavailable)
		}
	} else {
		scriptPath = locate(serviceScript, searchDirs())
	}
	if scriptPath == "" {
		return fmt.Errorf("%s not found: %w", serviceScript, ErrEstimatorUnavailable)
	}

	pythonPath := locate(venvPython, searchDirs())
	if pythonPath == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, scriptPath,
		"--max-hands", strconv.Itoa(d.opts.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.opts.MinConfidence, 'f', 2, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.opts.MinTrackingConf, 'f', 2, 64),
	)

	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("mediapipe stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mediapipe stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mediapipe start: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.started = true

	go d.readLoop(cmd, bufio.NewReader(stdout))

	d.logger.Info("mediapipe service started", "python", pythonPath, "script", scriptPath)
	return nil
}

// readLoop delivers one result per response line until the process exits.
func (d *MediaPipeEstimator) readLoop(cmd *exec.Cmd, stdout *bufio.Reader) {
	for {
		line, err := stdout.ReadString('\n')
		if err != nil {
			d.mu.Lock()
			current := d.cmd == cmd
			fn := d.onResult
			if current {
				d.stopLocked()
			}
			d.mu.Unlock()

			if current && fn != nil {
				fn(nil, fmt.Errorf("read response: %w", err))
			}
			return
		}

		hands, err := parseResponse(line)

		d.mu.Lock()
		fn := d.onResult
		d.mu.Unlock()

		if fn != nil {
			fn(hands, err)
		}
	}
}

func (d *MediaPipeEstimator) stopLocked() error {
	if !d.started {
		return nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil

	return err
}

func parseResponse(line string) ([]Hand, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe: %s", response.Error)
	}

	result := make([]Hand, len(response.Hands))
	for i, h := range response.Hands {
		result[i] = h.toHand()
	}
	return result, nil
}

const (
	serviceScript = "scripts/mediapipe_service.py"
	venvPython    = "venv/bin/python"
)

// searchDirs lists where service files are looked up, in order: the working
// directory, its parent, next to the binary and under ~/.gyre.
func searchDirs() []string {
	dirs := []string{".", ".."}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".gyre"))
	}
	return dirs
}

// locate returns the absolute path of the first dir/rel that exists.
func locate(rel string, dirs []string) string {
	for _, dir := range dirs {
		p := filepath.Join(dir, rel)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (h jsonHand) toHand() Hand {
	hand := Hand{
		Landmarks:  make([]Point3D, len(h.Points)),
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	for i, p := range h.Points {
		hand.Landmarks[i] = Point3D{X: p.X, Y: p.Y, Z: p.Z}
	}
	return hand
}
