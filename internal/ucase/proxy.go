// Package ucase держит доменное состояние одной сессии АТС: внутренние
// номера, транки, очереди и парковки. Состояние строится при старте из
// структуры и живых данных АТС, меняется событиями и командами управления
// звонками, а каждое изменение уходит подписчикам уведомлением.
package ucase

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/logger"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

var (
	ErrUnknownEndpoint   = errors.New("unknown endpoint")
	ErrNoConversation    = errors.New("no such conversation")
	ErrWrongEndpointType = errors.New("wrong endpoint type")
	ErrNotParticipant    = errors.New("endpoint is not a participant")
	ErrNoChannel         = errors.New("conversation has no such channel")
	ErrUnknownParking    = errors.New("unknown parking")
	ErrNotParked         = errors.New("nothing parked")
	ErrNotReady          = errors.New("proxy is not ready")
)

// тип конечной точки в командах управления
const EndpointExtension = "extension"

// Commander - реестр командных плагинов
type Commander interface {
	Do(args command.Args, cb command.Callback)
}

// Done завершает команду управления звонком ровно один раз
type Done func(err error)

type Options struct {
	// каталог записей разговоров
	RecordPath string
	// пауза между тонами DTMF
	DTMFDelay time.Duration
	// канал уведомлений, nil - уведомления не нужны
	Notify chan<- model.Notification
	// сколько ждать переполненный канал уведомлений
	NotifyTimeout time.Duration
	Logger        logger.Logger
	Now           func() time.Time
	Sleep         func(time.Duration)
}

func (o Options) withDefaults() Options {
	if o.RecordPath == "" {
		o.RecordPath = "/var/spool/asterisk/monitor"
	}
	if o.DTMFDelay == 0 {
		o.DTMFDelay = 300 * time.Millisecond
	}
	if o.NotifyTimeout == 0 {
		o.NotifyTimeout = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	return o
}

type Proxy struct {
	cmd  Commander
	opts Options
	log  logger.Logger

	// все агрегаты под одним мьютексом, команды под ним не отправляются
	mu         sync.RWMutex
	topology   *model.Struct
	extensions map[string]*model.Extension
	trunks     map[string]*model.Trunk
	queues     map[string]*model.Queue
	parkings   map[string]*model.Parking
	// разговоры, которые сейчас пишутся
	recording map[string]struct{}

	startOnce sync.Once
	ready     chan struct{}
}

func New(cmd Commander, topology *model.Struct, opts Options) *Proxy {
	o := opts.withDefaults()
	if topology == nil {
		topology, _ = model.NewStruct()
	}
	return &Proxy{
		cmd:        cmd,
		opts:       o,
		log:        logger.OrDefault(o.Logger),
		topology:   topology.Clone(),
		extensions: make(map[string]*model.Extension),
		trunks:     make(map[string]*model.Trunk),
		queues:     make(map[string]*model.Queue),
		parkings:   make(map[string]*model.Parking),
		recording:  make(map[string]struct{}),
		ready:      make(chan struct{}),
	}
}

// Ready закрывается после первичной сборки состояния
func (p *Proxy) Ready() <-chan struct{} {
	return p.ready
}

func (p *Proxy) isReady() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

type result struct {
	res interface{}
	err error
}

// call ждёт ответа плагина, нельзя вызывать из цикла чтения соединения
func (p *Proxy) call(args command.Args) (interface{}, error) {
	ch := make(chan result, 1)
	p.cmd.Do(args, func(res interface{}, err error) {
		ch <- result{res, err}
	})
	r := <-ch
	return r.res, r.err
}

// emit отправляет уведомление, при переполнении ждёт NotifyTimeout и
// выбрасывает его
func (p *Proxy) emit(name, key string, payload interface{}) {
	if p.opts.Notify == nil {
		return
	}
	n := model.Notification{Name: name, Key: key, Payload: payload, Time: p.opts.Now()}
	select {
	case p.opts.Notify <- n:
		metrics.GetOrCreateCounter(`ctiproxy_notifications_emitted_total{name="` + name + `"}`).Inc()
		return
	default:
	}
	t := time.NewTimer(p.opts.NotifyTimeout)
	defer t.Stop()
	select {
	case p.opts.Notify <- n:
		metrics.GetOrCreateCounter(`ctiproxy_notifications_emitted_total{name="` + name + `"}`).Inc()
	case <-t.C:
		metrics.GetOrCreateCounter(`ctiproxy_notifications_dropped_total{name="` + name + `"}`).Inc()
		p.log.Warnf("overflowing notifications channel, %s %s dropped", name, key)
	}
}

func (p *Proxy) emitExten(num string) {
	p.mu.RLock()
	e, ok := p.extensions[num]
	var v model.EndpointView
	if ok {
		v = e.View(p.opts.Now())
	}
	p.mu.RUnlock()
	if ok {
		p.emit(model.ExtenChanged, num, v)
	}
}

func (p *Proxy) emitTrunk(num string) {
	p.mu.RLock()
	t, ok := p.trunks[num]
	var v model.EndpointView
	if ok {
		v = t.View(p.opts.Now())
	}
	p.mu.RUnlock()
	if ok {
		p.emit(model.TrunkChanged, num, v)
	}
}

func (p *Proxy) emitQueue(num string) {
	p.mu.RLock()
	q, ok := p.queues[num]
	var v model.QueueView
	if ok {
		v = q.View(p.opts.Now())
	}
	p.mu.RUnlock()
	if ok {
		p.emit(model.QueueChanged, num, v)
	}
}

func (p *Proxy) emitParking(num string) {
	p.mu.RLock()
	pk, ok := p.parkings[num]
	var v model.ParkingView
	if ok {
		v = pk.View()
	}
	p.mu.RUnlock()
	if ok {
		p.emit(model.ParkingChanged, num, v)
	}
}

func (p *Proxy) Extension(num string) (model.EndpointView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.extensions[num]
	if !ok {
		return model.EndpointView{}, false
	}
	return e.View(p.opts.Now()), true
}

func (p *Proxy) Extensions() map[string]model.EndpointView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.opts.Now()
	out := make(map[string]model.EndpointView, len(p.extensions))
	for k, e := range p.extensions {
		out[k] = e.View(now)
	}
	return out
}

func (p *Proxy) Trunks() map[string]model.EndpointView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.opts.Now()
	out := make(map[string]model.EndpointView, len(p.trunks))
	for k, t := range p.trunks {
		out[k] = t.View(now)
	}
	return out
}

func (p *Proxy) Queues() map[string]model.QueueView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.opts.Now()
	out := make(map[string]model.QueueView, len(p.queues))
	for k, q := range p.queues {
		out[k] = q.View(now)
	}
	return out
}

func (p *Proxy) Parkings() map[string]model.ParkingView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]model.ParkingView, len(p.parkings))
	for k, pk := range p.parkings {
		out[k] = pk.View()
	}
	return out
}

// Recording - идентификаторы записываемых разговоров
func (p *Proxy) Recording() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.recording))
	for id := range p.recording {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// технология для строки канала: sip -> SIP, iax -> IAX2
func dialTech(tech string) string {
	if tech == model.TechIAX {
		return "IAX2"
	}
	return "SIP"
}
