package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type listener struct {
	onFoo func(int)
}

func TestEmitterDispatchesToAllListeners(t *testing.T) {
	e := NewEmitter[*listener]()
	var got []int
	e.AddListener(&listener{onFoo: func(n int) { got = append(got, n) }})
	e.AddListener(&listener{onFoo: func(n int) { got = append(got, n*10) }})

	e.Emit(func(l *listener) { l.onFoo(5) })

	require.ElementsMatch(t, []int{5, 50}, got)
}

func TestEmitterRecoversPanickingListener(t *testing.T) {
	e := NewEmitter[*listener]()
	called := false
	e.AddListener(&listener{onFoo: func(int) { panic("boom") }})
	e.AddListener(&listener{onFoo: func(int) { called = true }})

	require.NotPanics(t, func() {
		e.Emit(func(l *listener) { l.onFoo(1) })
	})
	require.True(t, called)
}

func TestRemoveListenerStopsDispatch(t *testing.T) {
	e := NewEmitter[*listener]()
	count := 0
	l := &listener{onFoo: func(int) { count++ }}
	e.AddListener(l)
	e.RemoveListener(l)

	e.Emit(func(l *listener) { l.onFoo(1) })
	require.Equal(t, 0, count)
}

func TestEventBusPublishSubscribe(t *testing.T) {
	received := make(chan any, 1)
	Events().Subscribe(func(ev any) { received <- ev })
	Events().Publish("hello")
	require.Equal(t, "hello", <-received)
}
