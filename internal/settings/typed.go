package settings

import (
	"context"
	"strconv"
	"time"

	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
)

// Theme returns the UI theme: light, dark or system.
func (s *Store) Theme(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, KeyTheme)
	return v.Value, err
}

// SetTheme stores the UI theme.
func (s *Store) SetTheme(ctx context.Context, theme, source string) error {
	_, err := s.Set(ctx, KeyTheme, theme, source)
	return err
}

// Language returns the UI language tag.
func (s *Store) Language(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, KeyLanguage)
	return v.Value, err
}

// SetLanguage stores the UI language tag.
func (s *Store) SetLanguage(ctx context.Context, tag, source string) error {
	_, err := s.Set(ctx, KeyLanguage, tag, source)
	return err
}

// LastView returns the view the navigation restores on startup.
func (s *Store) LastView(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, KeyLastView)
	return v.Value, err
}

// SetLastView records the view currently shown.
func (s *Store) SetLastView(ctx context.Context, view, source string) error {
	_, err := s.Set(ctx, KeyLastView, view, source)
	return err
}

// WindowSize returns the saved window geometry.
func (s *Store) WindowSize(ctx context.Context) (WindowSize, error) {
	values, err := s.values(ctx, KeyWindowWidth, KeyWindowHeight, KeyWindowMaximized)
	if err != nil {
		return WindowSize{}, err
	}

	var ws WindowSize
	if ws.Width, err = strconv.Atoi(values[0].Value); err != nil {
		return WindowSize{}, invalid(KeyWindowWidth, "stored %q is not an integer", values[0].Value)
	}
	if ws.Height, err = strconv.Atoi(values[1].Value); err != nil {
		return WindowSize{}, invalid(KeyWindowHeight, "stored %q is not an integer", values[1].Value)
	}
	if ws.Maximized, err = strconv.ParseBool(values[2].Value); err != nil {
		return WindowSize{}, invalid(KeyWindowMaximized, "stored %q is not a boolean", values[2].Value)
	}
	return ws, nil
}

// SetWindowSize stores all three geometry values in one transaction.
func (s *Store) SetWindowSize(ctx context.Context, ws WindowSize, source string) error {
	_, err := s.SetMany(ctx, map[Key]string{
		KeyWindowWidth:     strconv.Itoa(ws.Width),
		KeyWindowHeight:    strconv.Itoa(ws.Height),
		KeyWindowMaximized: strconv.FormatBool(ws.Maximized),
	}, source)
	return err
}

// LastOpened returns when the application was last opened, if ever recorded.
func (s *Store) LastOpened(ctx context.Context) (database.Optional[time.Time], error) {
	v, err := s.Get(ctx, KeyLastOpened)
	if err != nil {
		return database.None[time.Time](), err
	}
	if v.Default {
		return database.None[time.Time](), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.Value)
	if err != nil {
		return database.None[time.Time](), invalid(KeyLastOpened, "stored %q is not a timestamp", v.Value)
	}
	return database.Some(t), nil
}

// TouchLastOpened records the current time as last_opened.
func (s *Store) TouchLastOpened(ctx context.Context, source string) error {
	_, err := s.Set(ctx, KeyLastOpened, s.now().UTC().Format(time.RFC3339Nano), source)
	return err
}
