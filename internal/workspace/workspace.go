// Package workspace keeps one editable script per mode together with the
// outcome of its last run, the way an interactive client presents four
// editors side by side.
package workspace

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/c4pt0r/sqlground/internal/runner"
	"github.com/c4pt0r/sqlground/sqlsplit"
)

// ErrRunning is returned when a mode is edited, cleared or run while a run
// of the same mode is in flight.
var ErrRunning = errors.New("a run is already in progress for this mode")

// RunFunc executes one request. (*runner.Runner).Run satisfies it.
type RunFunc func(ctx context.Context, req runner.Request) (*runner.Result, error)

// State is a copy of one mode's editor.
type State struct {
	Mode    runner.Mode
	Script  string
	Result  *runner.Result
	Err     error
	Running bool
}

// Workspace holds the per-mode editors. It is safe for concurrent use; runs
// of different modes proceed independently.
type Workspace struct {
	mu       sync.Mutex
	run      RunFunc
	states   map[runner.Mode]*State
	readOnly bool
	database string

	onSchemaChange func()
}

// New creates a workspace with an empty editor for every mode. Read-only
// checking of DQL scripts starts enabled.
func New(run RunFunc) *Workspace {
	w := &Workspace{
		run:      run,
		states:   make(map[runner.Mode]*State, len(runner.Modes)),
		readOnly: true,
	}
	for _, m := range runner.Modes {
		w.states[m] = &State{Mode: m}
	}
	return w
}

// OnSchemaChange registers fn to be called after every DDL or DCL run,
// successful or not.
func (w *Workspace) OnSchemaChange(fn func()) {
	w.mu.Lock()
	w.onSchemaChange = fn
	w.mu.Unlock()
}

// SetReadOnly toggles the read-only whitelist for DQL runs.
func (w *Workspace) SetReadOnly(on bool) {
	w.mu.Lock()
	w.readOnly = on
	w.mu.Unlock()
}

func (w *Workspace) ReadOnly() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readOnly
}

// SetDatabase selects the default database for subsequent runs.
func (w *Workspace) SetDatabase(name string) {
	w.mu.Lock()
	w.database = name
	w.mu.Unlock()
}

func (w *Workspace) Database() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.database
}

func (w *Workspace) state(mode runner.Mode) (*State, error) {
	s, ok := w.states[mode]
	if !ok {
		return nil, runner.ErrInvalidMode
	}
	return s, nil
}

// Edit replaces the script of mode.
func (w *Workspace) Edit(mode runner.Mode, script string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.state(mode)
	if err != nil {
		return err
	}
	if s.Running {
		return ErrRunning
	}
	s.Script = script
	return nil
}

// Append adds text to the end of the script of mode, separated by a newline.
func (w *Workspace) Append(mode runner.Mode, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.state(mode)
	if err != nil {
		return err
	}
	if s.Running {
		return ErrRunning
	}
	if s.Script != "" {
		s.Script += "\n"
	}
	s.Script += text
	return nil
}

// Clear empties the script and forgets the last result of mode.
func (w *Workspace) Clear(mode runner.Mode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.state(mode)
	if err != nil {
		return err
	}
	if s.Running {
		return ErrRunning
	}
	*s = State{Mode: mode}
	return nil
}

// Snapshot returns a copy of the editor of mode.
func (w *Workspace) Snapshot(mode runner.Mode) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.state(mode)
	if err != nil {
		return State{}, err
	}
	return *s, nil
}

// Run executes the script of mode and records the outcome. When read-only
// checking is on, DQL scripts are checked before anything is sent; the same
// check is repeated next to the session.
func (w *Workspace) Run(ctx context.Context, mode runner.Mode) (*runner.Result, error) {
	w.mu.Lock()
	s, err := w.state(mode)
	if err != nil {
		w.mu.Unlock()
		return &runner.Result{Mode: mode}, err
	}
	if s.Running {
		w.mu.Unlock()
		return &runner.Result{Mode: mode}, ErrRunning
	}
	s.Running = true
	req := runner.Request{
		Mode:            mode,
		Script:          s.Script,
		Database:        w.database,
		EnforceReadOnly: w.readOnly,
	}
	onSchemaChange := w.onSchemaChange
	w.mu.Unlock()

	var res *runner.Result
	if err = precheck(req); err != nil {
		res = &runner.Result{Mode: mode}
	} else {
		res, err = w.run(ctx, req)
		if res == nil {
			res = &runner.Result{Mode: mode}
		}
	}

	w.mu.Lock()
	s.Running = false
	s.Result = res
	s.Err = err
	w.mu.Unlock()

	if (mode == runner.SchemaDefinition || mode == runner.AccessControl) && onSchemaChange != nil {
		onSchemaChange()
	}
	log.Debug().Str("mode", mode.String()).Int("outcomes", len(res.Outcomes)).Err(err).Msg("workspace run finished")
	return res, err
}

// precheck is the advisory read-only check done before a request leaves the
// client.
func precheck(req runner.Request) error {
	if req.Mode != runner.ReadQuery || !req.EnforceReadOnly {
		return nil
	}
	var v *sqlsplit.Violation
	if err := sqlsplit.ValidateReadOnly(req.Script); errors.As(err, &v) {
		return runner.ReadOnlyError(v)
	}
	return nil
}
