package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Profile is the durable identity of a player across rooms and games.
type Profile struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ExternalName string `json:"external_name"`
	AvatarURL    string `json:"avatar_url,omitempty"`
}

func NewGuestProfile(username, externalName string) *Profile {
	return &Profile{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		ExternalName: NormalizeExternalName(externalName, username),
	}
}

// NormalizeExternalName falls back to the display name and strips a leading "@".
func NormalizeExternalName(externalName, username string) string {
	name := strings.TrimSpace(externalName)
	if name == "" {
		name = strings.TrimSpace(username)
	}
	return strings.TrimPrefix(name, "@")
}
