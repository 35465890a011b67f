package ucase

import (
	"context"
	"time"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/event"
	"github.com/nethesis/nethcti-server-sub001/internal/logger"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

type SessionOptions struct {
	Addr           string
	User           string
	Secret         string
	ConnectTimeout time.Duration
	// таймаут одного запроса к АТС
	ActionTimeout time.Duration
	Commands      command.Options
	Proxy         Options
	Topology      *model.Struct
	Logger        logger.Logger
	OnState       func(n ami.Notice, err error)
}

// Session - одно соединение с АТС и всё, что к нему привязано. После
// разрыва сессия не переиспользуется, вызывающий создаёт новую.
type Session struct {
	opts   SessionOptions
	log    logger.Logger
	conn   *ami.Conn
	cmds   *command.Registry
	events *event.Registry
	proxy  *Proxy
}

func NewSession(opts SessionOptions) *Session {
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = 30 * time.Second
	}
	s := &Session{opts: opts, log: logger.OrDefault(opts.Logger)}
	if opts.Proxy.Logger == nil {
		opts.Proxy.Logger = s.log
	}

	s.conn = ami.NewConn(ami.Options{
		Addr:           opts.Addr,
		ConnectTimeout: opts.ConnectTimeout,
		Logger:         s.log,
		OnState:        opts.OnState,
		OnMessage:      s.onMessage,
	})
	pending := command.NewPending(s.conn.IDs(), opts.ActionTimeout, s.log)
	s.cmds = command.NewRegistry(s.conn, pending, command.Plugins(pending, opts.Commands), s.log)
	s.proxy = New(s.cmds, opts.Topology, opts.Proxy)
	s.events = event.NewRegistry(s.proxy, nil, s.log)
	return s
}

func (s *Session) Proxy() *Proxy {
	return s.proxy
}

func (s *Session) Commands() *command.Registry {
	return s.cmds
}

func (s *Session) State() ami.State {
	return s.conn.State()
}

// сначала плагины, потом события без ActionID
func (s *Session) onMessage(m ami.Message) {
	s.cmds.Dispatch(m)
	if m.Type == ami.Event && m.ActionID() == "" {
		s.events.Dispatch(m)
	}
}

// Run соединяется, входит и обслуживает сессию до разрыва или отмены ctx
func (s *Session) Run(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}
	served := make(chan error, 1)
	go func() { served <- s.conn.Serve(ctx) }()

	if err := s.conn.Login(ctx, s.opts.User, s.opts.Secret); err != nil {
		s.conn.Close()
		<-served
		return err
	}
	return <-served
}

func (s *Session) Close() error {
	return s.conn.Close()
}
