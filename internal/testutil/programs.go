package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pyrewind/internal/layout"
	"github.com/roach88/pyrewind/internal/recorder"
)

// FooProgram calls foo from main and exits.
const FooProgram = `
entry: main
functions:
  - name: main
    file: main.py
    line: 1
    code:
      - {op: LOAD_CONST, arg: 0}
      - {op: CALL_FUNCTION, arg: 0, call: foo}
      - {op: RETURN_VALUE, exit: true}
  - name: foo
    file: main.py
    line: 10
    code:
      - {op: LOAD_FAST, arg: 0}
      - {op: LOAD_CONST, arg: 1}
      - {op: BINARY_ADD}
      - {op: RETURN_VALUE}
`

// PointProgram mutates the global object point and calls a native.
const PointProgram = `
entry: main
objects:
  - name: point
    class: Point
    attrs:
      x: 1
      y: 2
functions:
  - name: main
    file: point.py
    line: 1
    code:
      - {op: LOAD_CONST, arg: 0}
      - {op: STORE_ATTR, arg: 0, object: point, attr: x, value: 5}
      - {op: STORE_ATTR, arg: 1, object: point, attr: z, value: "hello"}
      - {op: DELETE_ATTR, arg: 2, object: point, attr: y}
      - {op: CALL_FUNCTION, arg: 0, call: len}
      - {op: RETURN_VALUE}
natives: [len]
`

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Layout returns the embedded interpreter layout.
func Layout(t testing.TB) *layout.Layout {
	t.Helper()
	l, err := layout.Default()
	require.NoError(t, err)
	return l
}

// Record records src against the embedded layout under the given ID.
func Record(t testing.TB, src, id string, opts ...recorder.Option) *recorder.Result {
	t.Helper()
	prog, err := recorder.ParseProgram([]byte(src))
	require.NoError(t, err)
	opts = append([]recorder.Option{recorder.WithID(id), recorder.WithLogger(DiscardLogger())}, opts...)
	res, err := recorder.Record(prog, Layout(t), opts...)
	require.NoError(t, err)
	return res
}
