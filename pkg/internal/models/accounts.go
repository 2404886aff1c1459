package models

// UserInfo is the display identity of a participant as the backend hands it
// out. It is carried verbatim through signaling payloads and observer hooks.
type UserInfo struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username,omitempty"`
	Location  string `json:"location,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
