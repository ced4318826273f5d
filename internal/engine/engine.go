package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/layout"
	"github.com/roach88/pyrewind/internal/reader"
	"github.com/roach88/pyrewind/internal/substrate"
)

// DefaultMaxSteps is the default step ceiling per navigation call. It keeps
// a search for something that never happens from running unbounded over a
// long recording.
const DefaultMaxSteps = 1_000_000

// Engine runs navigation calls against one substrate.
type Engine struct {
	sub    substrate.Substrate
	layout *layout.Layout
	reader *reader.Reader
	ids    IDGenerator
	logger *slog.Logger

	maxSteps     int  // 0 means unbounded
	parkOnCancel bool // return to the last consistent state when stopped early
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the default step ceiling. 0 means unbounded.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the navigation ID generator. The default generates
// UUIDv7s.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithParkOnCancel controls whether a cancelled or budget-exhausted call
// steps back to the last position where interpreter state was consistent.
// Enabled by default.
func WithParkOnCancel(park bool) Option {
	return func(e *Engine) {
		e.parkOnCancel = park
	}
}

// New creates an Engine driving sub and reading it through layout l.
func New(sub substrate.Substrate, l *layout.Layout, opts ...Option) *Engine {
	e := &Engine{
		sub:          sub,
		layout:       l,
		reader:       reader.New(sub.Memory(), l),
		ids:          UUIDv7Generator{},
		logger:       slog.Default(),
		maxSteps:     DefaultMaxSteps,
		parkOnCancel: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reader returns the state reader for the substrate's current position.
func (e *Engine) Reader() *reader.Reader {
	return e.reader
}

// Layout returns the introspection schema.
func (e *Engine) Layout() *layout.Layout {
	return e.layout
}

// Position returns the substrate's current position.
func (e *Engine) Position() ir.Position {
	return e.sub.Position()
}

// Interrupt asks a running navigation call to stop at the next elementary
// position. Safe from any goroutine.
func (e *Engine) Interrupt() {
	e.sub.Interrupt()
}

// StepBytecode steps forward to the next instruction boundary, or to the
// next boundary of the given opcode.
func (e *Engine) StepBytecode(ctx context.Context, opcode string) (ir.NavigationResult, error) {
	return e.Navigate(ctx, Request{Operation: ir.OpStepBytecode, Opcode: opcode})
}

// ReverseStepBytecode steps backward to the previous instruction boundary,
// or to the previous boundary of the given opcode.
func (e *Engine) ReverseStepBytecode(ctx context.Context, opcode string) (ir.NavigationResult, error) {
	return e.Navigate(ctx, Request{Operation: ir.OpReverseStepBytecode, Opcode: opcode})
}

// AdvanceToFunction runs forward to the next call, or the next call of the
// named function.
func (e *Engine) AdvanceToFunction(ctx context.Context, function string) (ir.NavigationResult, error) {
	return e.Navigate(ctx, Request{Operation: ir.OpAdvanceToFunction, Function: function})
}

// ReverseAdvanceToFunction runs backward to the previous call boundary, or
// the previous one of the named function.
func (e *Engine) ReverseAdvanceToFunction(ctx context.Context, function string) (ir.NavigationResult, error) {
	return e.Navigate(ctx, Request{Operation: ir.OpReverseAdvanceFunction, Function: function})
}

// LastAttributeChange searches in dir for a change to obj's attributes, or
// to the named attribute.
func (e *Engine) LastAttributeChange(ctx context.Context, obj ir.ObjectRef, attribute string, dir ir.Direction) (ir.NavigationResult, error) {
	return e.Navigate(ctx, Request{
		Operation: ir.OpLastAttributeChange,
		Direction: dir,
		Object:    obj,
		Attribute: attribute,
	})
}
