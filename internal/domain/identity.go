// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type UserID string

// Identity is the verified public profile of a user. It is owned by the
// identity provider; this layer never mutates it, only re-fetches.
type Identity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
	AccentColor string `json:"accentColor,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

func (i Identity) Validate() error {
	if len(i.DisplayName) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(i.DisplayName) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}

// Author is the identity snapshot frozen into a message at append time.
type Author struct {
	ID        UserID `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func AuthorOf(id Identity) Author {
	return Author{ID: id.ID, Name: id.DisplayName, Color: id.AccentColor, AvatarURL: id.AvatarURL}
}
