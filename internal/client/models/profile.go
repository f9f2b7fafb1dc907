package models

import "time"

// Profile is the application profile row keyed by user ID.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Username  string    `json:"username,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ProfileUpdate carries the fields to change; nil means unchanged.
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	Username  *string `json:"username,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Empty reports whether u changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FullName == nil && u.Username == nil && u.AvatarURL == nil
}

// Apply returns p with u applied.
func (u ProfileUpdate) Apply(p Profile) Profile {
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	return p
}
