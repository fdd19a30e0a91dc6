package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Command collects the parameters attached to a statement before it runs.
//
// Named parameters use sql.Named, so placeholders follow the driver's named
// syntax (":name", "@name" or "$name" for SQLite). Positional parameters are
// appended in call order for "?" (SQLite) or "$1" (pgx) placeholders.
// The statement text is never altered.
type Command struct {
	args []any
	err  error
}

// Binder attaches parameters to a Command. A nil Binder attaches nothing.
//
// Example:
//
//	func(cmd *database.Command) {
//	    cmd.Bind("key", "theme").Bind("value", "dark")
//	}
type Binder func(cmd *Command)

// Bind attaches a named parameter. A leading ':', '@' or '$' is stripped.
// An empty name is recorded and reported by the executor before the
// statement runs.
func (c *Command) Bind(name string, value any) *Command {
	trimmed := strings.TrimLeft(strings.TrimSpace(name), ":@$")
	if trimmed == "" {
		if c.err == nil {
			c.err = fmt.Errorf("%w: parameter name %q is empty", ErrInvalidParameter, name)
		}
		return c
	}
	c.args = append(c.args, sql.Named(trimmed, value))
	return c
}

// Arg attaches a positional parameter.
func (c *Command) Arg(value any) *Command {
	c.args = append(c.args, value)
	return c
}

// Args returns the attached parameters in order.
func (c *Command) Args() []any {
	return c.args
}

// Args returns a Binder that attaches values positionally.
func Args(values ...any) Binder {
	return func(cmd *Command) {
		for _, v := range values {
			cmd.Arg(v)
		}
	}
}

// build runs bind and returns the collected arguments.
func build(bind Binder) ([]any, error) {
	if bind == nil {
		return nil, nil
	}
	cmd := &Command{}
	bind(cmd)
	if cmd.err != nil {
		return nil, cmd.err
	}
	return cmd.args, nil
}
