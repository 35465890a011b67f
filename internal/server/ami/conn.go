package ami

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/looplab/fsm"

	"github.com/nethesis/nethcti-server-sub001/internal/logger"
)

type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"
	StateAuthenticating State = "authenticating"
	StateReady          State = "ready"
	StateError          State = "error"
	StateClosed         State = "closed"
)

// уведомления о жизненном цикле соединения
type Notice string

const (
	NoticeConnect      Notice = "connect"
	NoticeError        Notice = "error"
	NoticeDisconnected Notice = "disconnected"
	NoticeTimeout      Notice = "timeout"
)

const (
	evDial          = "dial"
	evEstablished   = "established"
	evLogin         = "login"
	evAuthenticated = "authenticated"
	evFail          = "fail"
	evClose         = "close"
)

var (
	ErrConnectTimeout = errors.New("AMI connect timeout")
	ErrNotConnected   = errors.New("AMI not connected")
	ErrLoginFailed    = errors.New("AMI login failed")
)

var anyState = []string{
	string(StateDisconnected), string(StateConnecting), string(StateConnected),
	string(StateAuthenticating), string(StateReady), string(StateError), string(StateClosed),
}

// число сессий в состоянии ready
var readySessions int64

var _ = metrics.NewGauge("ctiproxy_ami_ready_sessions", func() float64 {
	return float64(atomic.LoadInt64(&readySessions))
})

type Options struct {
	Addr           string
	ConnectTimeout time.Duration
	Logger         logger.Logger
	// OnState получает connect/error/disconnected/timeout
	OnState func(n Notice, err error)
	// OnMessage вызывается из цикла чтения строго в порядке прихода
	OnMessage func(m Message)
}

type Conn struct {
	opts Options
	log  logger.Logger
	sm   *fsm.FSM
	ids  *IDs

	mu      sync.Mutex
	nc      net.Conn
	loginID string
	loginCh chan Message

	// запись одного запроса целиком, порядок доставки = порядок вызова
	wmu    sync.Mutex
	framer Framer
}

func NewConn(opts Options) *Conn {
	c := &Conn{
		opts: opts,
		log:  logger.OrDefault(opts.Logger),
		ids:  NewIDs(),
	}
	c.sm = fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: evDial, Src: []string{string(StateDisconnected), string(StateError), string(StateClosed)}, Dst: string(StateConnecting)},
			{Name: evEstablished, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: evLogin, Src: []string{string(StateConnected)}, Dst: string(StateAuthenticating)},
			{Name: evAuthenticated, Src: []string{string(StateAuthenticating)}, Dst: string(StateReady)},
			{Name: evFail, Src: anyState, Dst: string(StateError)},
			{Name: evClose, Src: anyState, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.log.Infof("AMI %s state %s -> %s", c.opts.Addr, e.Src, e.Dst)
				if e.Dst == string(StateReady) {
					atomic.AddInt64(&readySessions, 1)
				} else if e.Src == string(StateReady) {
					atomic.AddInt64(&readySessions, -1)
				}
			},
		},
	)
	return c
}

func (c *Conn) State() State {
	return State(c.sm.Current())
}

// IDs отдаёт генератор идентификаторов сессии
func (c *Conn) IDs() *IDs {
	return c.ids
}

func (c *Conn) transition(event string) error {
	err := c.sm.Event(context.Background(), event)
	var nte fsm.NoTransitionError
	if errors.As(err, &nte) {
		return nil
	}
	return err
}

func (c *Conn) notify(n Notice, err error) {
	if c.opts.OnState != nil {
		c.opts.OnState(n, err)
	}
}

// Connect устанавливает TCP соединение, логин выполняется отдельно
func (c *Conn) Connect(ctx context.Context) error {
	if err := c.transition(evDial); err != nil {
		return fmt.Errorf("connect in state %s: %w", c.State(), err)
	}

	dctx := ctx
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	nc, err := d.DialContext(dctx, "tcp", c.opts.Addr)
	if err != nil {
		_ = c.transition(evFail)
		// таймаут наш, а не отмена родительского контекста
		if errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s after %s", ErrConnectTimeout, c.opts.Addr, c.opts.ConnectTimeout)
			c.notify(NoticeTimeout, err)
			return err
		}
		c.notify(NoticeError, err)
		return err
	}

	c.mu.Lock()
	c.nc = nc
	c.framer = Framer{}
	c.mu.Unlock()

	if err := c.transition(evEstablished); err != nil {
		nc.Close()
		return err
	}
	c.log.Infof("new AMI connection %s -> %s", nc.LocalAddr(), nc.RemoteAddr())
	c.notify(NoticeConnect, nil)
	return nil
}

// Login допустим только в состоянии connected и требует запущенного Serve
func (c *Conn) Login(ctx context.Context, user, secret string) error {
	if err := c.transition(evLogin); err != nil {
		return fmt.Errorf("login in state %s: %w", c.State(), err)
	}

	ch := make(chan Message, 1)
	c.mu.Lock()
	id := c.ids.New("login", nil)
	c.loginID = id
	c.loginCh = ch
	c.mu.Unlock()

	a := NewAction("Login", "Username", user, "Secret", secret, "Events", "on")
	a.ID = id
	if err := c.Send(a); err != nil {
		_ = c.transition(evFail)
		return err
	}

	select {
	case m := <-ch:
		if m.IsSuccess() {
			c.log.Infof("ServerLogin: %s as %s", c.opts.Addr, user)
			return c.transition(evAuthenticated)
		}
		_ = c.transition(evFail)
		err := fmt.Errorf("%w: %s", ErrLoginFailed, m.Get("message"))
		c.log.Warnf("ServerLoginFailed: %s as %s: %s", c.opts.Addr, user, m.Get("message"))
		c.notify(NoticeError, err)
		return err
	case <-ctx.Done():
		_ = c.transition(evFail)
		return ctx.Err()
	}
}

func (c *Conn) Send(a Action) error {
	switch c.State() {
	case StateConnected, StateAuthenticating, StateReady:
	default:
		return fmt.Errorf("%w: state %s", ErrNotConnected, c.State())
	}

	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil {
		return ErrNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := nc.Write(a.Encode()); err != nil {
		return fmt.Errorf("send %s: %w", a.Name, err)
	}
	metrics.GetOrCreateCounter(`ctiproxy_ami_actions_sent_total{action="` + a.Name + `"}`).Inc()
	return nil
}

// Serve - единственный цикл чтения сессии, завершается при потере соединения
// или отмене контекста
func (c *Conn) Serve(ctx context.Context) error {
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil {
		return ErrNotConnected
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			nc.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, 8192)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			metrics.GetOrCreateCounter("ctiproxy_ami_read_bytes_total").Add(n)
			msgs, errs := c.framer.Feed(buf[:n])
			for _, e := range errs {
				metrics.GetOrCreateCounter("ctiproxy_ami_frame_errors_total").Inc()
				c.log.Warnf("AMI %s: %s", c.opts.Addr, e)
			}
			for _, m := range msgs {
				metrics.GetOrCreateCounter(`ctiproxy_ami_messages_total{type="` + string(m.Type) + `"}`).Inc()
				if c.loginReply(m) {
					continue
				}
				c.dispatch(m)
			}
		}
		if err != nil {
			nc.Close()
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				_ = c.transition(evClose)
				c.log.Infof("closing AMI connection %s", c.opts.Addr)
				c.notify(NoticeDisconnected, nil)
				return nil
			}
			_ = c.transition(evFail)
			c.log.Errorf("AMI connection %s: %s", c.opts.Addr, err)
			c.notify(NoticeError, err)
			return err
		}
	}
}

func (c *Conn) loginReply(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loginID == "" || m.Type != Response || m.ActionID() != c.loginID {
		return false
	}
	c.loginCh <- m
	c.loginID = ""
	return true
}

// обработчик не должен ронять цикл чтения
func (c *Conn) dispatch(m Message) {
	if c.opts.OnMessage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("AMI message handler panic: %v", r)
		}
	}()
	c.opts.OnMessage(m)
}

func (c *Conn) Close() error {
	_ = c.transition(evClose)
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil {
		return nil
	}
	return nc.Close()
}
