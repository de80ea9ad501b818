package consts

const (
	// Engine kinds hosted by the service
	KindStub    = "stub"
	KindCommand = "command"

	DefaultMaxAudioBytes = 25 * 1024 * 1024 // 25MB

	// gRPC frames carry base64 audio plus the JSON envelope
	MessageOverhead = 1 << 20
)

// MaxMessageSize is the gRPC message limit needed to carry maxAudioBytes of audio.
func MaxMessageSize(maxAudioBytes int64) int {
	return int(maxAudioBytes/3*4+4) + MessageOverhead
}
