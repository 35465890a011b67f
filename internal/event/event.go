// Package event маршрутизирует события АТС без ActionID по имени события
// к обработчикам, которые меняют доменное состояние через Target.
package event

import (
	"strconv"
	"strings"

	"github.com/VictoriaMetrics/metrics"

	"github.com/nethesis/nethcti-server-sub001/internal/logger"
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

type Dialing struct {
	Channel     string
	Destination string
	CallerNum   string
	DialingNum  string
}

type QueueJoin struct {
	Queue    string
	Channel  string
	Num      string
	Name     string
	Position int
}

type MemberChange struct {
	Queue      string
	Member     string
	Name       string
	Membership string
	Paused     bool
	Reason     string
}

type Voicemail struct {
	Exten   string
	Context string
	New     int
	Old     int
}

type Parked struct {
	Parking    string
	Channel    string
	From       string
	CallerNum  string
	CallerName string
	Timeout    int
}

// Target - доменная логика, которую дёргают обработчики
type Target interface {
	ExtenStatusChanged(exten, statusCode string)
	PeerStatusChanged(peer string)
	DndChanged(exten string, on bool)
	ExternalCall(number string)
	ConversationDialing(d Dialing)
	ConversationConnected(num1, num2 string)
	ChannelHangup(channel, callerNum, connectedNum string)
	QueueCallerJoined(j QueueJoin)
	QueueCallerLeft(queue, channel string)
	QueueMemberAdded(c MemberChange)
	QueueMemberRemoved(queue, member string)
	QueueMemberPaused(c MemberChange)
	NewVoicemail(v Voicemail)
	CallParked(p Parked)
	CallUnparked(parking string)
	SpyStarted(spierChannel, spyeeChannel string)
	FullyBooted()
}

type Handler interface {
	Handle(t Target, msg ami.Message)
}

type HandlerFunc func(t Target, msg ami.Message)

func (f HandlerFunc) Handle(t Target, msg ami.Message) { f(t, msg) }

type Registry struct {
	target   Target
	handlers map[string]Handler
	log      logger.Logger
}

// NewRegistry: handlers == nil - стандартный набор
func NewRegistry(t Target, handlers map[string]Handler, log logger.Logger) *Registry {
	if handlers == nil {
		handlers = Handlers()
	}
	return &Registry{target: t, handlers: handlers, log: logger.OrDefault(log)}
}

// Dispatch возвращает false, если для события нет обработчика
func (r *Registry) Dispatch(msg ami.Message) bool {
	name := msg.Event()
	h, ok := r.handlers[name]
	if !ok {
		return false
	}
	metrics.GetOrCreateCounter(`ctiproxy_events_total{event="` + name + `"}`).Inc()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("event %s handler panic: %v", name, rec)
		}
	}()
	h.Handle(r.target, msg)
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Local/214@from-queue/n -> 214
func memberNumber(location string) string {
	s := strings.SplitN(location, "@", 2)[0]
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
