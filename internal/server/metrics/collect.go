package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

// Collector считает уведомления и держит число разговоров по номерам
type Collector struct {
	mu    sync.Mutex
	convs map[string]*int64
}

func NewCollector() *Collector {
	return &Collector{convs: make(map[string]*int64)}
}

// Run собирает метрики во время работы, выход по закрытию канала
func (c *Collector) Run(ch <-chan model.Notification) error {
	for {
		n, ok := <-ch
		// канал закрыт делать больше нечего
		if !ok {
			return nil
		}
		c.Observe(n)
	}
}

func (c *Collector) Observe(n model.Notification) {
	metrics.GetOrCreateCounter(`ctiproxy_notifications_total{name="` + n.Name + `"}`).Inc()
	switch v := n.Payload.(type) {
	case model.EndpointView:
		if n.Name == model.ExtenChanged {
			atomic.StoreInt64(c.gauge(n.Key), int64(len(v.Conversations)))
		}
	case model.QueueView:
		metrics.GetOrCreateCounter(`ctiproxy_queue_updates_total{queue="` + n.Key + `"}`).Inc()
	case model.VoicemailView:
		metrics.GetOrCreateCounter(`ctiproxy_voicemail_new_total{exten="` + n.Key + `"}`).Inc()
	}
}

// Conversations - последнее известное число разговоров номера
func (c *Collector) Conversations(exten string) int64 {
	c.mu.Lock()
	p, ok := c.convs[exten]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// gauge регистрируется один раз на номер
func (c *Collector) gauge(exten string) *int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.convs[exten]; ok {
		return p
	}
	p := new(int64)
	c.convs[exten] = p
	metrics.GetOrCreateGauge(`ctiproxy_extension_conversations{exten="`+exten+`"}`, func() float64 {
		return float64(atomic.LoadInt64(p))
	})
	return p
}
