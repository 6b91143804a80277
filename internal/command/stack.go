package command

import (
	"fmt"

	"go.uber.org/zap"
)

// Stack executes commands and keeps two histories. A new command clears the
// redo history; there is no branching.
type Stack struct {
	undo   []Command
	redo   []Command
	limit  int
	logger *zap.Logger
}

// StackOption configures a Stack
type StackOption func(*Stack)

// WithLimit caps the undo history. The oldest entries are dropped first.
// Zero means unlimited.
func WithLimit(limit int) StackOption {
	return func(s *Stack) {
		if limit >= 0 {
			s.limit = limit
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) StackOption {
	return func(s *Stack) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStack creates an empty stack
func NewStack(opts ...StackOption) *Stack {
	s := &Stack{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exec runs cmd and records it. A command whose Do fails is not recorded and
// the redo history is kept.
func (s *Stack) Exec(cmd Command) error {
	if cmd == nil {
		return ErrNilCommand
	}
	if err := cmd.Do(); err != nil {
		s.logger.Warn("command failed", zap.String("command", cmd.Name()), zap.Error(err))
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	s.push(cmd)
	s.redo = nil
	s.logger.Debug("command executed", zap.String("command", cmd.Name()), zap.Int("undo_depth", len(s.undo)))
	return nil
}

// ExecOrMerge runs cmd and then offers it to the command on top of the undo
// history. If that command absorbs it, no new entry is recorded, so a whole
// drag undoes in one step.
func (s *Stack) ExecOrMerge(cmd Command) error {
	if cmd == nil {
		return ErrNilCommand
	}
	if len(s.undo) == 0 {
		return s.Exec(cmd)
	}
	top, ok := s.undo[len(s.undo)-1].(Merger)
	if !ok {
		return s.Exec(cmd)
	}
	if err := cmd.Do(); err != nil {
		s.logger.Warn("command failed", zap.String("command", cmd.Name()), zap.Error(err))
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	if !top.TryMergeWith(cmd) {
		s.push(cmd)
	}
	s.redo = nil
	return nil
}

// Undo reverts the most recent command. It does nothing when there is none.
// If the command fails to undo it stays on the undo history.
func (s *Stack) Undo() error {
	if len(s.undo) == 0 {
		return nil
	}
	cmd := s.undo[len(s.undo)-1]
	if err := cmd.Undo(); err != nil {
		s.logger.Warn("undo failed", zap.String("command", cmd.Name()), zap.Error(err))
		return fmt.Errorf("undo %s: %w", cmd.Name(), err)
	}
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, cmd)
	s.logger.Debug("command undone", zap.String("command", cmd.Name()))
	return nil
}

// Redo re-applies the most recently undone command. It does nothing when
// there is none. If the command fails it stays on the redo history.
func (s *Stack) Redo() error {
	if len(s.redo) == 0 {
		return nil
	}
	cmd := s.redo[len(s.redo)-1]
	if err := cmd.Do(); err != nil {
		s.logger.Warn("redo failed", zap.String("command", cmd.Name()), zap.Error(err))
		return fmt.Errorf("redo %s: %w", cmd.Name(), err)
	}
	s.redo = s.redo[:len(s.redo)-1]
	s.push(cmd)
	s.logger.Debug("command redone", zap.String("command", cmd.Name()))
	return nil
}

// CanUndo reports whether Undo would do anything
func (s *Stack) CanUndo() bool {
	return len(s.undo) > 0
}

// CanRedo reports whether Redo would do anything
func (s *Stack) CanRedo() bool {
	return len(s.redo) > 0
}

// Clear drops both histories
func (s *Stack) Clear() {
	s.undo = nil
	s.redo = nil
}

// UndoNames lists the undo history, most recent first
func (s *Stack) UndoNames() []string {
	return names(s.undo)
}

// RedoNames lists the redo history, next to redo first
func (s *Stack) RedoNames() []string {
	return names(s.redo)
}

func (s *Stack) push(cmd Command) {
	s.undo = append(s.undo, cmd)
	if s.limit > 0 && len(s.undo) > s.limit {
		s.undo = append([]Command(nil), s.undo[len(s.undo)-s.limit:]...)
	}
}

func names(cmds []Command) []string {
	out := make([]string, 0, len(cmds))
	for i := len(cmds) - 1; i >= 0; i-- {
		out = append(out, cmds[i].Name())
	}
	return out
}
