package command

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/nethesis/nethcti-server-sub001/internal/logger"
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

// Registry - явная карта имя команды -> плагин, создаётся один раз на сессию
type Registry struct {
	conn    Conn
	pending *Pending
	plugins map[string]Plugin
	log     logger.Logger
}

func NewRegistry(conn Conn, pending *Pending, plugins map[string]Plugin, log logger.Logger) *Registry {
	r := &Registry{
		conn:    conn,
		pending: pending,
		plugins: plugins,
		log:     logger.OrDefault(log),
	}
	pending.onExpire = r.forget
	return r
}

func (r *Registry) Pending() *Pending {
	return r.pending
}

// Do - единая точка входа: выбирает плагин по args.Command
func (r *Registry) Do(args Args, cb Callback) {
	start := time.Now()
	done := func(res interface{}, err error) {
		metrics.GetOrCreateHistogram(`ctiproxy_command_duration_seconds{command="` + args.Command + `"}`).UpdateDuration(start)
		if err != nil {
			metrics.GetOrCreateCounter(`ctiproxy_command_errors_total{command="` + args.Command + `"}`).Inc()
		}
		if cb != nil {
			cb(res, err)
		}
	}

	p, ok := r.plugins[args.Command]
	if !ok {
		r.log.Warnf("no plugin for command %q", args.Command)
		done(nil, fmt.Errorf("%w: %q", ErrUnknownCommand, args.Command))
		return
	}
	metrics.GetOrCreateCounter(`ctiproxy_commands_total{command="` + args.Command + `"}`).Inc()

	if err := r.execute(p, args, done); err != nil {
		r.log.Warnf("command %s rejected: %s", args.Command, err)
		done(nil, err)
	}
}

func (r *Registry) execute(p Plugin, args Args, cb Callback) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("command %s panic: %v", args.Command, rec)
		}
	}()
	return p.Execute(r.conn, args, cb)
}

// Dispatch раздаёт сообщение всем плагинам, каждый сам решает, его ли оно.
// Ответы на неизвестные запросы отбрасываются, события доходят всегда:
// по событию завершения плагин чистит общий буфер.
func (r *Registry) Dispatch(msg ami.Message) {
	if id := msg.ActionID(); id != "" && msg.Type == ami.Response && !r.pending.Has(id) {
		r.log.Warnf("reply for unknown action %s ignored", id)
		return
	}
	for name, p := range r.plugins {
		r.deliver(name, p, msg)
	}
}

func (r *Registry) deliver(name string, p Plugin, msg ami.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("plugin %s panic on message: %v", name, rec)
		}
	}()
	p.OnMessage(msg)
}

func (r *Registry) forget(name, id string) {
	if f, ok := r.plugins[name].(forgetter); ok {
		f.Forget(id)
	}
}
