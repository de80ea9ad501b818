package entity

import (
	"regexp"
	"slices"
	"strings"
)

const (
	MeetingIDPrefix = "meet_"
	DefaultFormat   = "wav"
)

var (
	meetingIDPattern = regexp.MustCompile(`^meet_[0-9a-f]{32}$`)
	referencePattern = regexp.MustCompile(`^(meet_[0-9a-f]{32})\.([a-z0-9]{2,5})$`)
)

var contentTypes = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
	"webm": "audio/webm",
}

// SupportedFormats lists the accepted format tags in a stable order.
func SupportedFormats() []string {
	formats := make([]string, 0, len(contentTypes))
	for f := range contentTypes {
		formats = append(formats, f)
	}
	slices.Sort(formats)
	return formats
}

// NormalizeFormat lowercases the tag, applies the default and checks the allowlist.
func NormalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return DefaultFormat, nil
	}
	if _, ok := contentTypes[format]; !ok {
		return "", PayloadErrorf("unsupported format %q, expected one of %s", format, strings.Join(SupportedFormats(), ", "))
	}
	return format, nil
}

func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

func ValidMeetingID(id string) bool {
	return meetingIDPattern.MatchString(id)
}

// Reference names a stored audio blob as {meeting_id}.{format}.
type Reference string

func NewReference(id, format string) (Reference, error) {
	return ParseReference(id + "." + format)
}

// ParseReference accepts only the exact {meeting_id}.{format} shape, which rules out
// path separators, parent segments and escaped sequences.
func ParseReference(s string) (Reference, error) {
	m := referencePattern.FindStringSubmatch(s)
	if m == nil {
		return "", PayloadErrorf("invalid audio reference %q", s)
	}
	if _, ok := contentTypes[m[2]]; !ok {
		return "", PayloadErrorf("unsupported audio format %q", m[2])
	}
	return Reference(s), nil
}

func (r Reference) MeetingID() string {
	id, _, _ := strings.Cut(string(r), ".")
	return id
}

func (r Reference) Format() string {
	_, format, _ := strings.Cut(string(r), ".")
	return format
}

func (r Reference) String() string {
	return string(r)
}
