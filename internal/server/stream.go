package server

import (
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/ayusman/gyre/internal/render"
)

// FrameSource yields the latest composited frame.
type FrameSource interface {
	Frame() *image.RGBA
}

// StreamHandler serves the composited scene as MJPEG.
type StreamHandler struct {
	source   FrameSource
	interval time.Duration
	quality  int
}

// NewStreamHandler creates a new StreamHandler sending one frame per interval.
func NewStreamHandler(source FrameSource, interval time.Duration, quality int) *StreamHandler {
	return &StreamHandler{source: source, interval: interval, quality: quality}
}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		buf, err := render.EncodeJPEG(h.source.Frame(), h.quality)
		if err == nil {
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
			if _, err := w.Write(buf); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")

			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func encodeWebP(w io.Writer, img image.Image) error {
	return render.EncodeWebP(w, img)
}
