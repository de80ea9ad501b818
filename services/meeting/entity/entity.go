package entity

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type (
	TranscriptSegment struct {
		SpeakerLabel string    `json:"speaker_label"`
		Text         string    `json:"text"`
		Timestamp    Timestamp `json:"timestamp"`
		Confidence   float64   `json:"confidence"`
	}

	SpeakerChannel struct {
		SpeakerID string              `json:"speaker_id"`
		Segments  []TranscriptSegment `json:"segments"`
	}

	EngineResult struct {
		Transcript     string           `json:"transcript"`
		Speakers       []SpeakerChannel `json:"speakers"`
		TechnicalTerms []string         `json:"technical_terms"`
	}

	MeetingRecord struct {
		MeetingID      string           `json:"meeting_id"`
		AudioReference Reference        `json:"audio_reference"`
		Format         string           `json:"format"`
		AudioSize      int64            `json:"audio_size"`
		AudioChecksum  string           `json:"audio_checksum"`
		Transcript     *string          `json:"transcript"`
		Speakers       []SpeakerChannel `json:"speakers"`
		TechnicalTerms []string         `json:"technical_terms"`
		Status         Status           `json:"status"`
		Error          *string          `json:"error"`
		CreatedAt      time.Time        `json:"created_at"`
		UpdatedAt      time.Time        `json:"updated_at"`
	}
)

// NewRecord returns a record in the processing state for audio that is already stored.
func NewRecord(id string, ref Reference, size int64, checksum string, now time.Time) *MeetingRecord {
	return &MeetingRecord{
		MeetingID:      id,
		AudioReference: ref,
		Format:         ref.Format(),
		AudioSize:      size,
		AudioChecksum:  checksum,
		Speakers:       []SpeakerChannel{},
		TechnicalTerms: []string{},
		Status:         StatusProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *MeetingRecord) Complete(result *EngineResult, now time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRecordFinalized, r.MeetingID, r.Status)
	}

	transcript := result.Transcript
	r.Transcript = &transcript
	r.Speakers = result.Speakers
	r.TechnicalTerms = result.TechnicalTerms
	r.Status = StatusCompleted
	r.Error = nil
	r.UpdatedAt = now
	return nil
}

func (r *MeetingRecord) Fail(message string, now time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRecordFinalized, r.MeetingID, r.Status)
	}

	r.Status = StatusFailed
	r.Error = &message
	r.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so stored snapshots are never shared with callers.
func (r *MeetingRecord) Clone() *MeetingRecord {
	if r == nil {
		return nil
	}

	c := *r
	if r.Transcript != nil {
		t := *r.Transcript
		c.Transcript = &t
	}
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	c.TechnicalTerms = append([]string{}, r.TechnicalTerms...)
	c.Speakers = make([]SpeakerChannel, len(r.Speakers))
	for i, sp := range r.Speakers {
		c.Speakers[i] = SpeakerChannel{
			SpeakerID: sp.SpeakerID,
			Segments:  append([]TranscriptSegment{}, sp.Segments...),
		}
	}
	return &c
}
