package settings

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Validation constants.
const (
	minWindowDimension = 320
	maxWindowDimension = 10000
	maxViewNameLength  = 64
	languagePattern    = `^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`
	viewNamePattern    = `^[A-Za-z][A-Za-z0-9_.-]*$`
)

var (
	languageRegex = regexp.MustCompile(languagePattern)
	viewNameRegex = regexp.MustCompile(viewNamePattern)
)

func unknownKey(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

func invalid(key Key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidValue, key, fmt.Sprintf(format, args...))
}

// Normalise validates value for key and returns its canonical stored form.
func Normalise(key Key, value string) (string, error) {
	value = strings.TrimSpace(value)

	switch key {
	case KeyTheme:
		v := strings.ToLower(value)
		switch v {
		case ThemeLight, ThemeDark, ThemeSystem:
			return v, nil
		}
		return "", invalid(key, "%q is not one of light, dark, system", value)

	case KeyLanguage:
		if !languageRegex.MatchString(value) {
			return "", invalid(key, "%q is not a language tag", value)
		}
		return value, nil

	case KeyWindowWidth, KeyWindowHeight:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", invalid(key, "%q is not an integer", value)
		}
		if n < minWindowDimension || n > maxWindowDimension {
			return "", invalid(key, "%d is outside %d-%d", n, minWindowDimension, maxWindowDimension)
		}
		return strconv.Itoa(n), nil

	case KeyWindowMaximized:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", invalid(key, "%q is not a boolean", value)
		}
		return strconv.FormatBool(b), nil

	case KeyLastView:
		if len(value) > maxViewNameLength || !viewNameRegex.MatchString(value) {
			return "", invalid(key, "%q is not a view name", value)
		}
		return value, nil

	case KeyLastOpened:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return "", invalid(key, "%q is not an RFC 3339 timestamp", value)
		}
		return t.UTC().Format(time.RFC3339Nano), nil

	default:
		return "", unknownKey(string(key))
	}
}
