package models

// UnknownUserName is shown when a profile has no display name.
const UnknownUserName = "Unknown User"

// UserProfile is the read-only directory entry for a user.
type UserProfile struct {
	ID          string `db:"id" json:"id"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url,omitempty"`
	DeviceToken string `db:"device_token" json:"-"`
}

// Name returns the display name or the unknown-user placeholder.
func (u UserProfile) Name() string {
	if u.DisplayName == "" {
		return UnknownUserName
	}
	return u.DisplayName
}
