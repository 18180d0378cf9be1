package domain

// Member is one live connection inside a room.
type Member struct {
	ConnID   ConnID   `json:"id"`
	Name     string   `json:"name"`
	Identity Identity `json:"-"`
	JoinedAt int64    `json:"joinedAt"` // unix millis
	CameraOn bool     `json:"cameraOn"`
	Status   *Status  `json:"status"`
}
