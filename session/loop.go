package session

import (
	"context"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/geo"
)

type eventKind int

const (
	eventGPS eventKind = iota
	eventFrame
)

type event struct {
	kind   eventKind
	sample geo.Sample
	frame  Frame
}

// Loop serializes GPS and frame events onto a single goroutine so the
// Session never sees concurrent calls. Producers post without blocking;
// when the queue is full the event is dropped and counted.
type Loop struct {
	session *Session
	events  chan event

	// OnFrame, when set, receives the output of every processed frame.
	// It runs on the loop goroutine.
	OnFrame func(FrameOutput, error)
}

// NewLoop creates an event loop around the session with the given queue
// capacity. Pass queueSize <= 0 to use the session's configured size.
func NewLoop(session *Session, queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = session.queueSize
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Loop{
		session: session,
		events:  make(chan event, queueSize),
	}
}

// Session returns the wrapped session. Only touch it from the loop
// goroutine or before Run starts.
func (l *Loop) Session() *Session {
	return l.session
}

// PostGPS enqueues a GPS sample. Returns false if the queue is full.
func (l *Loop) PostGPS(sample geo.Sample) bool {
	select {
	case l.events <- event{kind: eventGPS, sample: sample}:
		return true
	default:
		return false
	}
}

// PostFrame enqueues a detector frame. Returns false if the queue is full.
func (l *Loop) PostFrame(frame Frame) bool {
	select {
	case l.events <- event{kind: eventFrame, frame: frame}:
		return true
	default:
		l.session.metrics.FramesDropped.Add(1)
		return false
	}
}

// Run processes events until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-l.events:
			switch ev.kind {
			case eventGPS:
				l.session.HandleGPS(ev.sample)
			case eventFrame:
				out, err := l.session.HandleFrame(ctx, ev.frame)
				if l.OnFrame != nil {
					l.OnFrame(out, err)
				}
			}
		}
	}
}
