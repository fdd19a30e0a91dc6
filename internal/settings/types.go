package settings

import (
	"slices"
	"time"
)

// Key names a stored preference.
type Key string

// Supported keys.
const (
	KeyTheme           Key = "theme"
	KeyLanguage        Key = "language"
	KeyWindowWidth     Key = "window_width"
	KeyWindowHeight    Key = "window_height"
	KeyWindowMaximized Key = "window_maximized"
	KeyLastView        Key = "last_view"
	KeyLastOpened      Key = "last_opened"
)

// Theme values.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// AllKeys returns every supported key in display order.
func AllKeys() []Key {
	return []Key{
		KeyTheme,
		KeyLanguage,
		KeyWindowWidth,
		KeyWindowHeight,
		KeyWindowMaximized,
		KeyLastView,
		KeyLastOpened,
	}
}

// ParseKey returns the Key for name or ErrUnknownKey.
func ParseKey(name string) (Key, error) {
	k := Key(name)
	if !slices.Contains(AllKeys(), k) {
		return "", unknownKey(name)
	}
	return k, nil
}

// Setting is a stored key/value pair.
type Setting struct {
	Key       Key       `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Value is the effective value of a key: the stored one, or the default.
type Value struct {
	Key     Key    `json:"key"`
	Value   string `json:"value"`
	Default bool   `json:"default"`
}

// WindowSize is the last saved main window geometry.
type WindowSize struct {
	Width     int  `json:"width"`
	Height    int  `json:"height"`
	Maximized bool `json:"maximized"`
}
