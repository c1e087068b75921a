package progress

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrInvalidTransition is returned when a phase is reported out of order or
// after the stream has terminated.
var ErrInvalidTransition = errors.New("progress: invalid phase transition")

// Sink receives events in emission order. Implementations must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Tracker enforces phase ordering, a non-decreasing percentage and a single
// terminal event. All events leave through emit.
type Tracker struct {
	mu    sync.Mutex
	sink  Sink
	phase Phase
	pct   int
}

func NewTracker(sink Sink) *Tracker {
	if sink == nil {
		sink = Discard
	}
	return &Tracker{sink: sink}
}

func (t *Tracker) Extracting() error {
	return t.emit(PhaseExtracting, Event{Type: TypeProgress, Message: "Extracting bundle"}, basePercentage(PhaseExtracting))
}

func (t *Tracker) Extracted(assets int) error {
	return t.emit(PhaseExtracted, Event{
		Type:    TypeProgress,
		Message: fmt.Sprintf("Bundle extracted, %d images found", assets),
		Total:   intPtr(assets),
	}, basePercentage(PhaseExtracted))
}

// Uploading reports the cumulative upload count after a batch.
func (t *Tracker) Uploading(uploaded, total int) error {
	return t.emit(PhaseUploadingImages, Event{
		Type:     TypeProgress,
		Message:  fmt.Sprintf("Uploaded %d of %d images", uploaded, total),
		Uploaded: intPtr(uploaded),
		Total:    intPtr(total),
	}, UploadPercentage(uploaded, total))
}

func (t *Tracker) ImagesUploaded(uploaded, total int) error {
	return t.emit(PhaseImagesUploaded, Event{
		Type:     TypeProgress,
		Message:  fmt.Sprintf("%d of %d images uploaded", uploaded, total),
		Uploaded: intPtr(uploaded),
		Total:    intPtr(total),
	}, basePercentage(PhaseImagesUploaded))
}

func (t *Tracker) UpdatingProduct() error {
	return t.emit(PhaseUpdatingProduct, Event{Type: TypeProgress, Message: "Updating product"}, basePercentage(PhaseUpdatingProduct))
}

func (t *Tracker) Complete(s Summary) error {
	return t.emit(PhaseComplete, Event{Type: TypeComplete, Message: "Bundle processed", Summary: &s}, percentComplete)
}

// Fail emits the terminal error event. It is a no-op once the stream has
// terminated so callers may use it unconditionally on their error path.
func (t *Tracker) Fail(err error) {
	msg := "ingestion failed"
	if err != nil {
		msg = err.Error()
	}
	t.mu.Lock()
	if t.phase.Terminal() {
		t.mu.Unlock()
		return
	}
	t.phase = PhaseError
	t.sink.Emit(ErrorEvent(msg))
	t.mu.Unlock()
}

func (t *Tracker) emit(next Phase, e Event, pct int) error {
	t.mu.Lock()
	if !CanTransition(t.phase, next) {
		current := t.phase
		t.mu.Unlock()
		zap.L().Warn("Rejected progress transition",
			zap.String("from", string(current)),
			zap.String("to", string(next)))
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, current, next)
	}
	if pct < t.pct {
		pct = t.pct
	}
	t.pct = pct
	t.phase = next
	e.Phase = next
	e.Percentage = intPtr(pct)
	t.sink.Emit(e)
	t.mu.Unlock()
	return nil
}
