package ami

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// читает один запрос из потока клиента
func readAction(r *bufio.Reader) (map[string]string, error) {
	h := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return h, nil
		}
		kv := strings.SplitN(line, ": ", 2)
		if len(kv) == 2 {
			h[kv[0]] = kv[1]
		}
	}
}

func fakePBX(t *testing.T, secret string) (string, chan map[string]string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan map[string]string, 16)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.Write([]byte("Asterisk Call Manager/1.3\r\n"))
		r := bufio.NewReader(c)
		for {
			a, err := readAction(r)
			if err != nil {
				return
			}
			got <- a
			switch a["Action"] {
			case "Login":
				if a["Secret"] == secret {
					c.Write([]byte("Response: Success\r\nActionID: " + a["ActionID"] + "\r\nMessage: Authentication accepted\r\n\r\n"))
					c.Write([]byte("Event: FullyBooted\r\nStatus: Fully Booted\r\n\r\n"))
				} else {
					c.Write([]byte("Response: Error\r\nActionID: " + a["ActionID"] + "\r\nMessage: Authentication failed\r\n\r\n"))
				}
			case "Logoff":
				return
			}
		}
	}()
	return ln.Addr().String(), got
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
	msgs    []Message
}

func (r *recorder) state(n Notice, _ error) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) message(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]Notice, []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...), append([]Message(nil), r.msgs...)
}

func TestConnLifecycle(t *testing.T) {
	addr, got := fakePBX(t, "s3cret")
	rec := &recorder{}
	c := NewConn(Options{Addr: addr, ConnectTimeout: time.Second, OnState: rec.state, OnMessage: rec.message})
	assert.Equal(t, StateDisconnected, c.State())

	// до соединения логин невозможен
	require.Error(t, c.Login(context.Background(), "admin", "s3cret"))

	assert.Equal(t, StateDisconnected, c.State())

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	require.NoError(t, c.Login(ctx, "admin", "s3cret"))
	assert.Equal(t, StateReady, c.State())

	login := <-got
	assert.Equal(t, "admin", login["Username"])
	assert.True(t, strings.HasPrefix(login["ActionID"], "login_"))

	require.Eventually(t, func() bool {
		_, msgs := rec.snapshot()
		return len(msgs) == 1
	}, time.Second, 10*time.Millisecond)
	_, msgs := rec.snapshot()
	assert.Equal(t, "fullybooted", msgs[0].Event())

	require.NoError(t, c.Send(NewAction("Logoff")))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
	assert.Equal(t, StateClosed, c.State())
	notices, _ := rec.snapshot()
	assert.Equal(t, []Notice{NoticeConnect, NoticeDisconnected}, notices)
	assert.ErrorIs(t, c.Send(NewAction("Ping")), ErrNotConnected)
}

func TestConnLoginFailed(t *testing.T) {
	addr, _ := fakePBX(t, "right")
	rec := &recorder{}
	c := NewConn(Options{Addr: addr, OnState: rec.state})
	require.NoError(t, c.Connect(context.Background()))
	go c.Serve(context.Background())
	defer c.Close()

	err := c.Login(context.Background(), "admin", "wrong")
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Contains(t, err.Error(), "Authentication failed")
	assert.Equal(t, StateError, c.State())
}

func TestConnConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	rec := &recorder{}
	c := NewConn(Options{Addr: addr, ConnectTimeout: time.Second, OnState: rec.state})
	require.Error(t, c.Connect(context.Background()))
	assert.Equal(t, StateError, c.State())
	notices, _ := rec.snapshot()
	assert.Equal(t, []Notice{NoticeError}, notices)
}
