package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xilidan/voicelink/services/meeting/entity"
)

// Stub is a deterministic engine for development and tests. It never runs unless
// selected explicitly.
type Stub struct {
	mu     sync.Mutex
	result *entity.EngineResult
	err    error
	delay  time.Duration
	calls  int
	panic  bool
}

func NewStub() *Stub {
	return &Stub{}
}

// NewStubWithResult always answers with res.
func NewStubWithResult(res *entity.EngineResult) *Stub {
	return &Stub{result: res}
}

// NewFailingStub always answers with err.
func NewFailingStub(err error) *Stub {
	return &Stub{err: err}
}

// SetDelay makes every call wait d (or until the context ends) before answering.
func (s *Stub) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetPanic makes every call panic.
func (s *Stub) SetPanic(p bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panic = p
}

func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Stub) Process(ctx context.Context, ref entity.Reference, format string) (*entity.EngineResult, error) {
	s.mu.Lock()
	s.calls++
	delay, res, err, shouldPanic := s.delay, s.result, s.err, s.panic
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if shouldPanic {
		panic("stub engine panic")
	}
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}
	return sampleResult(ref), nil
}

func sampleResult(ref entity.Reference) *entity.EngineResult {
	return &entity.EngineResult{
		Transcript: fmt.Sprintf("Sample transcript for %s", ref),
		Speakers: []entity.SpeakerChannel{{
			SpeakerID: "Speaker 1",
			Segments: []entity.TranscriptSegment{{
				SpeakerLabel: "Speaker 1",
				Text:         "This is a sample transcript.",
				Timestamp:    entity.Timestamp(5 * time.Second),
				Confidence:   0.95,
			}},
		}},
		TechnicalTerms: []string{"API", "audio processing", "transcription"},
	}
}
