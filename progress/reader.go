package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const readChunk = 4096

// Reader decodes a "data:"-framed event stream. Reads may split a record
// anywhere, so the unterminated tail of each read is kept for the next one.
type Reader struct {
	r       io.Reader
	pending []byte
	lines   [][]byte
	err     error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next event. It returns io.EOF when the source ends
// cleanly between records.
func (r *Reader) Next() (Event, error) {
	for {
		for len(r.lines) > 0 {
			line := r.lines[0]
			r.lines = r.lines[1:]
			e, ok, err := decodeLine(line)
			if err != nil {
				return Event{}, err
			}
			if ok {
				return e, nil
			}
		}
		if r.err != nil {
			return Event{}, r.err
		}
		r.fill()
	}
}

func (r *Reader) fill() {
	buf := make([]byte, readChunk)
	n, err := r.r.Read(buf)
	if n > 0 {
		r.pending = append(r.pending, buf[:n]...)
		for {
			i := bytes.IndexByte(r.pending, '\n')
			if i < 0 {
				break
			}
			r.lines = append(r.lines, bytes.TrimRight(r.pending[:i], "\r"))
			r.pending = r.pending[i+1:]
		}
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(r.pending)) > 0 {
				// a final record without its newline is still a record
				r.lines = append(r.lines, r.pending)
				r.pending = nil
			}
		}
		r.err = err
	}
}

func decodeLine(line []byte) (Event, bool, error) {
	payload, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		// blank separators, comments and other fields carry no payload
		return Event{}, false, nil
	}
	payload = bytes.TrimPrefix(payload, []byte(" "))
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, false, fmt.Errorf("decode event: %w", err)
	}
	return e, true, nil
}

// Subscribe decodes r in the background and delivers events on the returned
// channel, which is closed after the terminal event. If the source ends or
// fails first, a synthesized error event is delivered so consumers always
// observe termination.
func Subscribe(ctx context.Context, r io.Reader) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		dec := NewReader(r)
		for {
			e, err := dec.Next()
			if err != nil {
				msg := "progress stream ended before completion"
				if !errors.Is(err, io.EOF) {
					msg = fmt.Sprintf("progress stream failed: %v", err)
				}
				e = ErrorEvent(msg)
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
			if e.Terminal() {
				return
			}
		}
	}()
	return out
}
