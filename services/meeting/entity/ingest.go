package entity

import "io"

type IngestRequest struct {
	Upload io.Reader
	Format string
}

// IngestSummary is returned for every stored meeting. On engine failure Error is
// set and the result fields are empty.
type IngestSummary struct {
	MeetingID      string           `json:"meeting_id"`
	AudioURL       string           `json:"audio_url"`
	Transcript     string           `json:"transcript"`
	Speakers       []SpeakerChannel `json:"speakers"`
	TechnicalTerms []string         `json:"technical_terms"`
	Error          *string          `json:"error"`
}

type Audio struct {
	Reference   Reference
	ContentType string
	Size        int64
	Body        io.ReadCloser
}
