package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func TestOnEmit(t *testing.T) {
	b := New()
	var got []int
	unsub := On(b, func(_ context.Context, p ping) { got = append(got, p.n) })
	On(b, func(context.Context, pong) { t.Fatal("pong handler called for ping") })

	Emit(context.Background(), b, ping{1})
	Emit(context.Background(), b, ping{2})
	unsub()
	unsub()
	Emit(context.Background(), b, ping{3})
	require.Equal(t, []int{1, 2}, got)
}

func TestGlobal(t *testing.T) {
	Use(nil)
	require.Nil(t, Current())
	Publish(context.Background(), ping{1})
	Subscribe(func(context.Context, ping) { t.Fatal("no global bus") })()

	b := New()
	Use(b)
	defer Use(nil)
	var n int
	defer Subscribe(func(_ context.Context, p ping) { n += p.n })()
	Publish(context.Background(), ping{5})
	require.Equal(t, 5, n)
	require.Same(t, b, Current())
}
