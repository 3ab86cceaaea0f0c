// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"mongolark.io/errkind"
	"mongolark.io/registry"
	"mongolark.io/starlib"
	"mongolark.io/starlib/starlarkbson"
	"mongolark.io/starlib/starlarkmongo"
	"mongolark.io/starlib/starlarkthread"
)

// Phase is the stage of a script invocation. A failed invocation stays
// at the last phase it reached.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseBootstrapped
	PhaseEvaluated
	PhaseSucceeded
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseBootstrapped:
		return "bootstrapped"
	case PhaseEvaluated:
		return "evaluated"
	case PhaseSucceeded:
		return "succeeded"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Request is one script invocation.
type Request struct {
	ClientID string
	Database string
	Script   string
	Name     string // filename in positions, defaults to "<script>"
}

// Result of a successful invocation.
type Result struct {
	Value  any    // document value of the final expression
	Output string // captured print output
}

// Host runs scripts against the connections of a registry.
type Host struct {
	registry  *registry.Registry
	timeout   time.Duration
	maxSteps  uint64
	loaderURL string
	metrics   *Metrics
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithTimeout cancels invocations running longer than d.
func WithTimeout(d time.Duration) HostOption {
	return func(h *Host) { h.timeout = d }
}

// WithMaxSteps bounds the execution steps of an invocation.
func WithMaxSteps(n uint64) HostOption {
	return func(h *Host) { h.maxSteps = n }
}

// WithLoader enables load() of modules from the blob bucket at bktURL.
func WithLoader(bktURL string) HostOption {
	return func(h *Host) { h.loaderURL = bktURL }
}

// WithMetrics records invocations in m.
func WithMetrics(m *Metrics) HostOption {
	return func(h *Host) { h.metrics = m }
}

func NewHost(r *registry.Registry, opts ...HostOption) *Host {
	h := &Host{registry: r}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run evaluates req.Script with db bound to req.Database of the client
// req.ClientID. The value of a trailing expression statement is the result.
func (h *Host) Run(ctx context.Context, req Request) (_ *Result, err error) {
	start := time.Now()
	phase := PhaseCreated
	log := logr.FromContextOrDiscard(ctx).WithValues("client", req.ClientID, "db", req.Database)
	defer func() {
		if err != nil {
			log.V(1).Info("script failed", "phase", phase.String(), "kind", errkind.KindOf(err).String())
		} else {
			phase = PhaseSucceeded
		}
		h.metrics.observe(phase, err, time.Since(start))
	}()

	if strings.TrimSpace(req.Script) == "" {
		return nil, errkind.Errorf(errkind.InvalidArgument, "run", "empty script")
	}
	s, err := h.NewSession(logr.NewContext(ctx, log), req.ClientID, req.Database, req.Name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			log.Error(cerr, "closing session")
		}
	}()
	phase = PhaseBootstrapped

	v, out, err := s.Eval(ctx, req.Script)
	if err != nil {
		return nil, err
	}
	phase = PhaseEvaluated

	x, err := starlarkbson.ToBSON(v)
	if err != nil {
		return nil, errkind.New(errkind.ConversionError, "result", err)
	}
	return &Result{Value: x, Output: out}, nil
}

// Session is a thread and its globals bound to one database. Globals
// persist across calls to Eval. A Session is not safe for concurrent use.
type Session struct {
	host     *Host
	log      logr.Logger
	filename string
	thread   *starlark.Thread
	globals  starlark.StringDict
	out      strings.Builder
	cleanup  []func() error
}

// NewSession bootstraps a thread for db of the client clientID.
// The name is the filename of positions, it defaults to "<script>".
func (h *Host) NewSession(ctx context.Context, clientID, db, name string) (*Session, error) {
	if db == "" {
		return nil, errkind.Errorf(errkind.InvalidArgument, "run", "empty database name")
	}
	if _, err := h.registry.Lookup(clientID); err != nil {
		return nil, err
	}
	if name == "" {
		name = "<script>"
	}

	s := &Session{
		host:     h,
		log:      logr.FromContextOrDiscard(ctx),
		filename: name,
		globals:  starlib.NewGlobals(),
	}
	s.globals["db"] = starlarkmongo.NewDB(db, clientID)
	s.thread = &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			s.out.WriteString(msg)
			s.out.WriteByte('\n')
		},
	}

	starlarkmongo.SetRegistry(s.thread, h.registry)
	s.cleanup = append(s.cleanup, starlarkthread.WithResourceStore(s.thread))
	if h.maxSteps > 0 {
		s.thread.SetMaxExecutionSteps(h.maxSteps)
	}

	if h.loaderURL != "" {
		loader := starlib.NewLoader(s.globals)
		s.cleanup = append(s.cleanup, loader.Close)
		s.thread.Load = loader.Load
		s.thread.Name = starlib.ModuleName(h.loaderURL, name)
	} else {
		s.thread.Load = stdLoad
	}
	return s, nil
}

// Eval runs src in the session and returns the value of its trailing
// expression and the print output. A cancelled session stays cancelled.
func (s *Session) Eval(ctx context.Context, src string) (starlark.Value, string, error) {
	if s.host.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.host.timeout)
		defer cancel()
	}
	starlarkthread.SetContext(s.thread, logr.NewContext(ctx, s.log))

	stop := starlarkthread.WatchContext(s.thread, ctx)
	defer stop()

	s.log.V(1).Info("running script", "thread", s.thread.Name)
	v, err := eval(s.thread, s.filename, src, s.globals)

	out := s.out.String()
	s.out.Reset()
	return v, out, err
}

// Completer completes names of the session globals.
func (s *Session) Completer() starlib.Completer {
	return starlib.Completer{StringDict: s.globals, Thread: s.thread}
}

// Close releases the resources of the session.
func (s *Session) Close() error {
	var errs []error
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, s.cleanup[i]())
	}
	s.cleanup = nil
	return errors.Join(errs...)
}

func stdLoad(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	if v, ok := starlib.StdLoad(module); ok {
		return v, nil
	}
	return nil, fmt.Errorf("module %q not found: no module loader configured", module)
}

// eval runs every statement but a trailing expression as one chunk, then
// returns the value of that expression or None.
func eval(thread *starlark.Thread, filename, src string, globals starlark.StringDict) (starlark.Value, error) {
	f, err := syntax.Parse(filename, src, 0)
	if err != nil {
		return nil, errkind.New(errkind.ScriptParseError, "", err)
	}

	var last syntax.Expr
	if n := len(f.Stmts); n > 0 {
		if stmt, ok := f.Stmts[n-1].(*syntax.ExprStmt); ok {
			last = stmt.X
			f.Stmts = f.Stmts[:n-1]
		}
	}

	if len(f.Stmts) > 0 {
		if err := starlark.ExecREPLChunk(f, thread, globals); err != nil {
			return nil, evalError(err)
		}
	}
	if last == nil {
		return starlark.None, nil
	}
	v, err := starlark.EvalExpr(thread, last, globals)
	if err != nil {
		return nil, evalError(err)
	}
	return v, nil
}

// evalError classifies an evaluation failure. Kinds raised by the
// bindings are kept.
func evalError(err error) error {
	var (
		resolveErrs resolve.ErrorList
		syntaxErr   syntax.Error
	)
	switch {
	case errors.As(err, &resolveErrs), errors.As(err, &syntaxErr):
		return errkind.New(errkind.ScriptParseError, "", err)
	case errkind.KindOf(err) != errkind.Unknown:
		return err
	default:
		return errkind.New(errkind.ScriptRuntimeError, "", err)
	}
}
