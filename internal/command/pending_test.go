package command

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingConcurrentActions(t *testing.T) {
	p := NewPending(nil, 0, nil)
	const n = 200

	var (
		mu    sync.Mutex
		ids   = map[string]bool{}
		calls = make([]int32, n)
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := p.Register("listChannels", func(interface{}, error) { atomic.AddInt32(&calls[i], 1) })
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	require.Len(t, ids, n)
	assert.Equal(t, n, p.Len())

	for id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			// повторное завершение игнорируется
			p.Resolve(id, nil, nil)
			p.Resolve(id, nil, nil)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 0, p.Len())
	for i := range calls {
		assert.Equal(t, int32(1), calls[i], "continuation %d", i)
	}
}

func TestPendingTimeout(t *testing.T) {
	p := NewPending(nil, 20*time.Millisecond, nil)
	var expired string
	p.onExpire = func(name, id string) { expired = name }

	errCh := make(chan error, 1)
	id := p.Register("queueDetails", func(_ interface{}, err error) { errCh <- err })

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrActionTimeout)
		assert.Contains(t, err.Error(), id)
	case <-time.After(time.Second):
		t.Fatal("no timeout")
	}
	assert.Equal(t, "queueDetails", expired)
	assert.False(t, p.Resolve(id, nil, nil))
	assert.Equal(t, 0, p.Len())
}

func TestPendingResolveAll(t *testing.T) {
	p := NewPending(nil, 0, nil)
	var got []interface{}
	for i := 0; i < 3; i++ {
		p.Register("listParkings", func(res interface{}, _ error) { got = append(got, res) })
	}
	other := p.Register("listQueues", nil)

	assert.Equal(t, 3, p.ResolveAll("listParkings", "x", nil))
	assert.Equal(t, []interface{}{"x", "x", "x"}, got)
	assert.True(t, p.Has(other))
	assert.Equal(t, 1, p.Len())
}

func TestPendingCallbackPanicContained(t *testing.T) {
	p := NewPending(nil, 0, nil)
	id := p.Register("hangup", func(interface{}, error) { panic(errors.New("boom")) })
	assert.NotPanics(t, func() { p.Resolve(id, nil, nil) })
}
