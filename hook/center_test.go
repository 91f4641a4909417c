package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCenter(t *testing.T) {
	hc := NewCenter(nil)
	require.NotNil(t, hc)
}

func TestTrigger_NoHandlers(t *testing.T) {
	hc := NewCenter(nil)
	out, err := hc.Trigger(context.Background(), "noop", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestRegister_SingleHandler(t *testing.T) {
	hc := NewCenter(nil)
	called := false
	hc.Register("ev", 0, "h1", func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		called = true
		assert.Equal(t, "ev", event)
		return data, nil
	})
	_, err := hc.Trigger(context.Background(), "ev", "hello")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 1, hc.Len("ev"))
}

func TestTrigger_DataPassThrough(t *testing.T) {
	hc := NewCenter(nil)
	hc.Register("ev", 0, "double", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		return data.(int) * 2, nil
	})
	hc.Register("ev", 1, "addTen", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		return data.(int) + 10, nil
	})
	out, err := hc.Trigger(context.Background(), "ev", 5)
	require.NoError(t, err)
	assert.Equal(t, 20, out) // (5*2)+10
}

func TestTrigger_PriorityOrder(t *testing.T) {
	hc := NewCenter(nil)
	var order []int
	for _, p := range []int{10, 1, 5} {
		p := p
		hc.Register("ev", p, "h", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
			order = append(order, p)
			return d, nil
		})
	}
	hc.Trigger(context.Background(), "ev", nil)
	assert.Equal(t, []int{1, 5, 10}, order)
}

func TestRegister_EqualPriorityKeepsOrder(t *testing.T) {
	hc := NewCenter(nil)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		hc.Register("ev", 0, name, func(_ context.Context, _ string, d interface{}) (interface{}, error) {
			order = append(order, name)
			return d, nil
		})
	}
	hc.Emit(context.Background(), "ev", nil)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTrigger_ErrInterrupt(t *testing.T) {
	hc := NewCenter(nil)
	var secondCalled bool
	hc.Register("ev", 0, "stopper", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		return d, ErrInterrupt
	})
	hc.Register("ev", 1, "should_not_run", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		secondCalled = true
		return d, nil
	})
	_, err := hc.Trigger(context.Background(), "ev", nil)
	assert.True(t, errors.Is(err, ErrInterrupt))
	assert.False(t, secondCalled)
}

func TestUnregister_OnlyNamed(t *testing.T) {
	hc := NewCenter(nil)
	var c1, c2 bool
	hc.Register("ev", 0, "h1", func(_ context.Context, _ string, d interface{}) (interface{}, error) { c1 = true; return d, nil })
	hc.Register("ev", 1, "h2", func(_ context.Context, _ string, d interface{}) (interface{}, error) { c2 = true; return d, nil })
	hc.Unregister("ev", "h1")
	hc.Trigger(context.Background(), "ev", nil)
	assert.False(t, c1)
	assert.True(t, c2)
}

func TestUnregisterAll(t *testing.T) {
	hc := NewCenter(nil)
	var c1, c2, other bool
	hc.Register("evA", 0, "sub", func(_ context.Context, _ string, d interface{}) (interface{}, error) { c1 = true; return d, nil })
	hc.Register("evB", 0, "sub", func(_ context.Context, _ string, d interface{}) (interface{}, error) { c2 = true; return d, nil })
	hc.Register("evA", 1, "other", func(_ context.Context, _ string, d interface{}) (interface{}, error) { other = true; return d, nil })
	hc.UnregisterAll("sub")
	hc.Emit(context.Background(), "evA", nil)
	hc.Emit(context.Background(), "evB", nil)
	assert.False(t, c1)
	assert.False(t, c2)
	assert.True(t, other)
}

func TestEmit_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	hc := NewCenter(zap.New(core))
	var after bool
	hc.Register("ev", 0, "bad", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		panic("observer exploded")
	})
	hc.Register("ev", 1, "good", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		after = true
		return d, nil
	})
	assert.NotPanics(t, func() { hc.Emit(context.Background(), "ev", "payload") })
	assert.True(t, after)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "bad", logs.All()[0].ContextMap()["handler"])
}

func TestEmit_LogsErrorsAndContinues(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	hc := NewCenter(zap.New(core))
	var second bool
	hc.Register("ev", 0, "err", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		return d, errors.New("some error")
	})
	hc.Register("ev", 1, "second", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		second = true
		return d, nil
	})
	hc.Emit(context.Background(), "ev", nil)
	assert.True(t, second)
	assert.Equal(t, 1, logs.Len())
}

func TestEmit_DataNotChained(t *testing.T) {
	hc := NewCenter(nil)
	var seen []interface{}
	hc.Register("ev", 0, "a", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		seen = append(seen, d)
		return "changed", nil
	})
	hc.Register("ev", 1, "b", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		seen = append(seen, d)
		return d, nil
	})
	hc.Emit(context.Background(), "ev", "orig")
	assert.Equal(t, []interface{}{"orig", "orig"}, seen)
}
