package command

import (
	"errors"
	"fmt"
)

// Composite runs two commands as one unit. Undo runs in strict reverse order,
// which matters when the second depends on state the first established.
type Composite struct {
	name   string
	first  Command
	second Command
}

// NewComposite binds first and second. An empty name is derived from theirs.
func NewComposite(name string, first, second Command) (*Composite, error) {
	if first == nil || second == nil {
		return nil, ErrNilCommand
	}
	if name == "" {
		name = first.Name() + " + " + second.Name()
	}
	return &Composite{name: name, first: first, second: second}, nil
}

// Do implements Command. If second fails, first is undone again.
func (c *Composite) Do() error {
	if err := c.first.Do(); err != nil {
		return err
	}
	if err := c.second.Do(); err != nil {
		if rbErr := c.first.Undo(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback %s: %w", c.first.Name(), rbErr))
		}
		return err
	}
	return nil
}

// Undo implements Command
func (c *Composite) Undo() error {
	if err := c.second.Undo(); err != nil {
		return err
	}
	return c.first.Undo()
}

// Name implements Command
func (c *Composite) Name() string { return c.name }
