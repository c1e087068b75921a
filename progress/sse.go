package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// SetHeaders prepares w for a server-sent event stream.
func SetHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteEvent frames e as a single "data:" record terminated by a blank line.
func WriteEvent(w io.Writer, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Pump copies events from s to w until the terminal event is written, ctx
// ends, or a write fails. On failure the stream is detached so the producer
// keeps running without a consumer.
func Pump(ctx context.Context, w io.Writer, s *Stream) {
	for {
		e, ok := s.Next(ctx)
		if !ok {
			if ctx.Err() != nil {
				s.Detach()
			}
			return
		}
		if err := WriteEvent(w, e); err != nil {
			zap.L().Info("Progress client went away", zap.Error(err))
			s.Detach()
			return
		}
		if e.Terminal() {
			return
		}
	}
}
