// Package session holds the state of one interactive debugging session on
// top of the navigation engine: the selected object, the last attribute
// search so it can be repeated, and display queries for the current
// position.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/pyrewind/internal/engine"
	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/layout"
	"github.com/roach88/pyrewind/internal/reader"
	"github.com/roach88/pyrewind/internal/substrate"
)

// ErrNoSearch is returned when repeating an attribute search before any
// search was made.
var ErrNoSearch = errors.New("no previous attribute search")

// Selection is the object attribute searches default to.
type Selection struct {
	Name   string       `json:"name"`
	Object ir.ObjectRef `json:"object"`
	Scope  reader.Scope `json:"scope"`
	Type   string       `json:"type,omitempty"`
}

// AttrSearch is a repeatable attribute-change search. A zero Object means
// the selected object, a zero Direction means backward.
type AttrSearch struct {
	Object    ir.ObjectRef `json:"object"`
	Attribute string       `json:"attribute,omitempty"`
	Direction ir.Direction `json:"direction"`
	// MaxSteps is passed to the engine: 0 keeps its default.
	MaxSteps int `json:"max_steps,omitempty"`
}

// Session is one debugging session over a substrate.
type Session struct {
	eng     *engine.Engine
	rd      *reader.Reader
	layout  *layout.Layout
	logger  *slog.Logger
	warning string

	mu         sync.Mutex
	selection  *Selection
	lastSearch *AttrSearch
}

// Option configures a Session.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	engineOpts []engine.Option
}

// WithLogger sets the logger for the session and its engine.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEngineOptions passes options through to the navigation engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// Open starts a session and checks the target against the schema. A
// mismatch is not fatal: it is kept as a warning, and navigation calls will
// report it as an introspection mismatch.
func Open(sub substrate.Substrate, l *layout.Layout, opts ...Option) (*Session, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	engOpts := append([]engine.Option{engine.WithLogger(o.logger)}, o.engineOpts...)
	eng := engine.New(sub, l, engOpts...)

	s := &Session{
		eng:    eng,
		rd:     eng.Reader(),
		layout: l,
		logger: o.logger,
	}
	if _, err := s.rd.Verify(); err != nil {
		var mm *reader.MismatchError
		if !errors.As(err, &mm) {
			return nil, fmt.Errorf("open session: %w", err)
		}
		s.warning = fmt.Sprintf("warning: %v; navigation results cannot be trusted", mm)
		s.logger.Warn("interpreter build mismatch",
			"expected", mm.Expected,
			"found", mm.Found,
		)
	}
	return s, nil
}

// Warning returns the schema mismatch warning, or "".
func (s *Session) Warning() string {
	return s.warning
}

// Engine returns the navigation engine.
func (s *Session) Engine() *engine.Engine {
	return s.eng
}

// Position returns the current position.
func (s *Session) Position() ir.Position {
	return s.eng.Position()
}

// Interrupt stops a running navigation call. Safe from any goroutine.
func (s *Session) Interrupt() {
	s.eng.Interrupt()
}

// Step moves to the next instruction boundary, optionally of one opcode.
func (s *Session) Step(ctx context.Context, opcode string) (ir.NavigationResult, error) {
	return s.eng.StepBytecode(ctx, opcode)
}

// ReverseStep moves to the previous instruction boundary.
func (s *Session) ReverseStep(ctx context.Context, opcode string) (ir.NavigationResult, error) {
	return s.eng.ReverseStepBytecode(ctx, opcode)
}

// Advance runs forward to the next call, optionally of one function.
func (s *Session) Advance(ctx context.Context, function string) (ir.NavigationResult, error) {
	return s.eng.AdvanceToFunction(ctx, function)
}

// ReverseAdvance runs backward to the previous call boundary.
func (s *Session) ReverseAdvance(ctx context.Context, function string) (ir.NavigationResult, error) {
	return s.eng.ReverseAdvanceToFunction(ctx, function)
}

// Continue runs to the next execution of one of the named symbols.
func (s *Session) Continue(ctx context.Context, dir ir.Direction, symbols ...string) (ir.NavigationResult, error) {
	return s.eng.Navigate(ctx, engine.Request{
		Operation: ir.OpContinue,
		Direction: dir,
		Symbols:   symbols,
	})
}

// Navigate runs an arbitrary request.
func (s *Session) Navigate(ctx context.Context, req engine.Request) (ir.NavigationResult, error) {
	return s.eng.Navigate(ctx, req)
}
