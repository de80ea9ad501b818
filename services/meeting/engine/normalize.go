package engine

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/xilidan/voicelink/services/meeting/entity"
)

const unknownSpeaker = "Unknown"

// Normalize returns a copy of res with unique speaker ids, unique non-empty terms,
// confidences clamped to [0,1] and each speaker's segments in timestamp order.
func Normalize(res *entity.EngineResult) *entity.EngineResult {
	out := &entity.EngineResult{
		Transcript:     strings.TrimSpace(res.Transcript),
		Speakers:       []entity.SpeakerChannel{},
		TechnicalTerms: []string{},
	}

	seenTerms := make(map[string]struct{}, len(res.TechnicalTerms))
	for _, term := range res.TechnicalTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if _, ok := seenTerms[term]; ok {
			continue
		}
		seenTerms[term] = struct{}{}
		out.TechnicalTerms = append(out.TechnicalTerms, term)
	}

	index := make(map[string]int, len(res.Speakers))
	for _, ch := range res.Speakers {
		id := strings.TrimSpace(ch.SpeakerID)
		if id == "" {
			id = unknownSpeaker
		}
		i, ok := index[id]
		if !ok {
			i = len(out.Speakers)
			index[id] = i
			out.Speakers = append(out.Speakers, entity.SpeakerChannel{
				SpeakerID: id,
				Segments:  []entity.TranscriptSegment{},
			})
		}
		for _, seg := range ch.Segments {
			if seg.SpeakerLabel == "" {
				seg.SpeakerLabel = id
			}
			seg.Confidence = clamp(seg.Confidence)
			out.Speakers[i].Segments = append(out.Speakers[i].Segments, seg)
		}
	}

	for i := range out.Speakers {
		slices.SortStableFunc(out.Speakers[i].Segments, func(a, b entity.TranscriptSegment) int {
			return cmp.Compare(a.Timestamp, b.Timestamp)
		})
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
