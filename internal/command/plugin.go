package command

import (
	"strings"
	"sync"

	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

type base struct {
	name    string
	pending *Pending
}

// send регистрирует продолжение до отправки: ответ может прийти раньше,
// чем вернётся Send
func (b *base) send(conn Conn, prefix string, a ami.Action, cb Callback) string {
	id := b.pending.Register(prefix, cb)
	a.ID = id
	if err := conn.Send(a); err != nil {
		b.pending.Resolve(id, nil, err)
	}
	return id
}

// mine: сообщение относится к ожидающему запросу этого плагина
func (b *base) mine(msg ami.Message) bool {
	id := msg.ActionID()
	name, ok := ami.CommandName(id)
	return ok && name == b.name && b.pending.Has(id)
}

func (b *base) actionError(msg ami.Message) error {
	return &ActionError{Command: b.name, Message: msg.Get("message")}
}

// simple - один запрос, один ответ Success/Error
type simple struct {
	base
	build func(args Args) (ami.Action, error)
}

func newSimple(name string, p *Pending, build func(args Args) (ami.Action, error)) *simple {
	return &simple{base: base{name, p}, build: build}
}

func (s *simple) Execute(conn Conn, args Args, cb Callback) error {
	a, err := s.build(args)
	if err != nil {
		return err
	}
	s.send(conn, s.name, a, cb)
	return nil
}

func (s *simple) OnMessage(msg ami.Message) {
	if msg.Type != ami.Response || !s.mine(msg) {
		return
	}
	if msg.IsError() {
		s.pending.Resolve(msg.ActionID(), nil, s.actionError(msg))
		return
	}
	s.pending.Resolve(msg.ActionID(), msg.Get("message"), nil)
}

// reply - один ответ, из полей которого строится результат
type reply struct {
	base
	build func(args Args) (ami.Action, string, error)
	parse func(id string, msg ami.Message) (interface{}, error)
}

func (r *reply) Execute(conn Conn, args Args, cb Callback) error {
	a, prefix, err := r.build(args)
	if err != nil {
		return err
	}
	r.send(conn, prefix, a, cb)
	return nil
}

func (r *reply) OnMessage(msg ami.Message) {
	if msg.Type != ami.Response || !r.mine(msg) {
		return
	}
	if msg.IsError() {
		r.pending.Resolve(msg.ActionID(), nil, r.actionError(msg))
		return
	}
	res, err := r.parse(msg.ActionID(), msg)
	r.pending.Resolve(msg.ActionID(), res, err)
}

// collector копит события-строки по идентификатору запроса до события
// завершения
type collector struct {
	base
	build    func(args Args) (ami.Action, string, error)
	rows     map[string]bool
	complete string
	finish   func(id string, rows []ami.Message) (interface{}, error)

	mu  sync.Mutex
	acc map[string][]ami.Message
}

func newCollector(name string, p *Pending, complete string, rows []string,
	build func(args Args) (ami.Action, string, error),
	finish func(id string, rows []ami.Message) (interface{}, error)) *collector {
	c := &collector{
		base:     base{name, p},
		build:    build,
		rows:     make(map[string]bool, len(rows)),
		complete: strings.ToLower(complete),
		finish:   finish,
		acc:      make(map[string][]ami.Message),
	}
	for _, r := range rows {
		c.rows[strings.ToLower(r)] = true
	}
	return c
}

func (c *collector) Execute(conn Conn, args Args, cb Callback) error {
	a, prefix, err := c.build(args)
	if err != nil {
		return err
	}
	if prefix == "" {
		prefix = c.name
	}
	c.send(conn, prefix, a, cb)
	return nil
}

func (c *collector) OnMessage(msg ami.Message) {
	if !c.mine(msg) {
		return
	}
	id := msg.ActionID()
	switch {
	case msg.IsError():
		c.Forget(id)
		c.pending.Resolve(id, nil, c.actionError(msg))
	case msg.Type != ami.Event:
	case c.rows[msg.Event()]:
		c.mu.Lock()
		c.acc[id] = append(c.acc[id], msg)
		c.mu.Unlock()
	case msg.Event() == c.complete:
		c.mu.Lock()
		rows := c.acc[id]
		delete(c.acc, id)
		c.mu.Unlock()
		res, err := c.finish(id, rows)
		c.pending.Resolve(id, res, err)
	}
}

func (c *collector) Forget(id string) {
	c.mu.Lock()
	delete(c.acc, id)
	c.mu.Unlock()
}

// число строк в буферах, для тестов
func (c *collector) buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acc)
}

func prefixed(name, param string) string {
	return name + "_" + param
}
