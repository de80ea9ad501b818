package entity

type (
	ProcessRequest struct {
		MeetingID string `json:"meeting_id"`
		Format    string `json:"format"`
		Audio     []byte `json:"audio"`
	}

	HealthCheckResponse struct {
		Status bool   `json:"status"`
		Kind   string `json:"kind"`
	}
)
