package domain

const (
	statusTextLimit    = 80
	statusManualLimit  = 40
	statusAmbientLimit = 20

	TimerModeFocus = "focus"
	TimerModeBreak = "break"
)

// Status is a sanitized presence annotation shown next to a member.
type Status struct {
	Text         string `json:"text"`
	Visible      bool   `json:"visible"`
	Manual       string `json:"manual"`
	ManualPreset string `json:"manualPreset,omitempty"`
	AutoSync     bool   `json:"autoSync"`
	AmbientType  string `json:"ambientType,omitempty"`
	TimerMode    string `json:"timerMode,omitempty"`
	UpdatedAt    int64  `json:"updatedAt"` // unix millis
}

// StatusInput is the raw client payload before sanitation. Visible is
// a pointer because absence means "visible", not false.
type StatusInput struct {
	Text         string `json:"text"`
	Visible      *bool  `json:"visible"`
	Manual       string `json:"manual"`
	ManualPreset string `json:"manualPreset"`
	AutoSync     bool   `json:"autoSync"`
	AmbientType  string `json:"ambientType"`
	TimerMode    string `json:"timerMode"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// SanitizeStatus clamps field lengths, coerces the timer mode to its
// closed set, and forces the text empty when the status is hidden.
func SanitizeStatus(in StatusInput, now int64) Status {
	visible := in.Visible == nil || *in.Visible

	out := Status{
		Visible:      visible,
		Manual:       truncateRunes(in.Manual, statusManualLimit),
		ManualPreset: in.ManualPreset,
		AutoSync:     in.AutoSync,
		AmbientType:  truncateRunes(in.AmbientType, statusAmbientLimit),
		UpdatedAt:    in.UpdatedAt,
	}
	if visible {
		out.Text = truncateRunes(in.Text, statusTextLimit)
	}
	switch in.TimerMode {
	case TimerModeFocus, TimerModeBreak:
		out.TimerMode = in.TimerMode
	}
	if out.UpdatedAt == 0 {
		out.UpdatedAt = now
	}
	return out
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
