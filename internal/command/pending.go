package command

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/nethesis/nethcti-server-sub001/internal/logger"
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

var pendingTotal int64

var _ = metrics.NewGauge("ctiproxy_actions_pending", func() float64 {
	return float64(atomic.LoadInt64(&pendingTotal))
})

type action struct {
	name  string
	cb    Callback
	timer *time.Timer
}

// Pending хранит ожидающие ответа запросы. Продолжение вызывается вне
// блокировки и только один раз.
type Pending struct {
	mu       sync.Mutex
	ids      *ami.IDs
	timeout  time.Duration
	actions  map[string]*action
	onExpire func(name, id string)
	log      logger.Logger
}

// NewPending: timeout <= 0 отключает таймаут запросов
func NewPending(ids *ami.IDs, timeout time.Duration, log logger.Logger) *Pending {
	if ids == nil {
		ids = ami.NewIDs()
	}
	return &Pending{
		ids:     ids,
		timeout: timeout,
		actions: make(map[string]*action),
		log:     logger.OrDefault(log),
	}
}

// Register выделяет уникальный идентификатор с префиксом prefix
// (имя команды, возможно с параметром: cfGet_214) и запоминает продолжение
func (p *Pending) Register(prefix string, cb Callback) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.ids.New(prefix, func(id string) bool {
		_, ok := p.actions[id]
		return ok
	})
	name, _ := ami.CommandName(id)
	a := &action{name: name, cb: cb}
	if p.timeout > 0 {
		a.timer = time.AfterFunc(p.timeout, func() { p.expire(id) })
	}
	p.actions[id] = a
	atomic.AddInt64(&pendingTotal, 1)
	return id
}

func (p *Pending) take(id string) (*action, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.actions[id]
	if !ok {
		return nil, false
	}
	delete(p.actions, id)
	atomic.AddInt64(&pendingTotal, -1)
	if a.timer != nil {
		a.timer.Stop()
	}
	return a, true
}

func (p *Pending) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.actions[id]
	return ok
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.actions)
}

// Resolve завершает запрос, false если он уже завершён или неизвестен
func (p *Pending) Resolve(id string, res interface{}, err error) bool {
	a, ok := p.take(id)
	if !ok {
		return false
	}
	p.invoke(id, a, res, err)
	return true
}

// ResolveAll завершает все запросы команды name одним результатом - для
// ответов без идентификатора
func (p *Pending) ResolveAll(name string, res interface{}, err error) int {
	p.mu.Lock()
	var ids []string
	for id, a := range p.actions {
		if a.name == name {
			ids = append(ids, id)
		}
	}
	p.mu.Unlock()

	n := 0
	for _, id := range ids {
		if p.Resolve(id, res, err) {
			n++
		}
	}
	return n
}

func (p *Pending) expire(id string) {
	a, ok := p.take(id)
	if !ok {
		return
	}
	metrics.GetOrCreateCounter(`ctiproxy_action_timeouts_total{command="` + a.name + `"}`).Inc()
	p.log.Warnf("action %s timed out after %s", id, p.timeout)
	if p.onExpire != nil {
		p.onExpire(a.name, id)
	}
	p.invoke(id, a, nil, fmt.Errorf("%w: %s", ErrActionTimeout, id))
}

func (p *Pending) invoke(id string, a *action, res interface{}, err error) {
	if a.cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("callback of %s panic: %v", id, r)
		}
	}()
	a.cb(res, err)
}
