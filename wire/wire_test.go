package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWirePreservesOrder(t *testing.T) {
	w := New(4)
	w.Write("a")
	w.Write("b")
	w.Write("c")
	w.Close()

	var got []Event
	for evt := range w.Read() {
		got = append(got, evt)
	}
	require.Equal(t, []Event{"a", "b", "c"}, got)
}

func TestWriteAfterClosePanics(t *testing.T) {
	w := New(1)
	w.Close()
	require.Panics(t, func() { w.Write("late") })
}

func TestCloseIsIdempotent(t *testing.T) {
	w := New(1)
	w.Close()
	require.NotPanics(t, func() { w.Close() })
}

func TestForwarderRewritesAndPropagates(t *testing.T) {
	child := New(4)
	parent := New(4)

	child.Write("x")
	child.Write("y")
	child.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		Forwarder(child, parent, func(e Event) Event {
			return e.(string) + "!"
		})
		parent.Close()
	}()
	<-done

	var got []Event
	for evt := range parent.Read() {
		got = append(got, evt)
	}
	require.Equal(t, []Event{"x!", "y!"}, got)
}
