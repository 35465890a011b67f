package model

import (
	"sort"
	"time"
)

const (
	TechSIP = "sip"
	TechIAX = "iax"
)

// статусы доступности
const (
	StatusOnline      = "online"
	StatusOffline     = "offline"
	StatusBusy        = "busy"
	StatusDnd         = "dnd"
	StatusRinging     = "ringing"
	StatusBusyRinging = "busy_ringing"
	StatusOnHold      = "onhold"
)

// ExtenStatus переводит код ExtensionState в статус
func ExtenStatus(code string) string {
	switch code {
	case "0":
		return StatusOnline
	case "1":
		return StatusBusy
	case "2":
		return StatusDnd
	case "8":
		return StatusRinging
	case "9":
		return StatusBusyRinging
	case "16":
		return StatusOnHold
	}
	return StatusOffline
}

// TrunkStatus переводит PeerStatus транка
func TrunkStatus(peerStatus string) string {
	switch peerStatus {
	case "Reachable", "Lagged", "Registered", "OK":
		return StatusOnline
	}
	return StatusOffline
}

// общая часть внутреннего номера и транка
type Endpoint struct {
	Number    string
	Tech      string
	IP        string
	Port      string
	Name      string
	UserAgent string
	Status    string

	conversations map[string]*Conversation
}

func newEndpoint(number, tech string) Endpoint {
	return Endpoint{
		Number:        number,
		Tech:          tech,
		Status:        StatusOffline,
		conversations: make(map[string]*Conversation),
	}
}

func (e *Endpoint) AddConversation(c *Conversation) {
	e.conversations[c.ID] = c
}

// RemoveAllConversations очищает набор перед полной пересборкой
func (e *Endpoint) RemoveAllConversations() {
	e.conversations = make(map[string]*Conversation)
}

func (e *Endpoint) Conversation(id string) (*Conversation, bool) {
	c, ok := e.conversations[id]
	return c, ok
}

func (e *Endpoint) ConversationCount() int {
	return len(e.conversations)
}

// Conversations в порядке идентификаторов
func (e *Endpoint) Conversations() []*Conversation {
	out := make([]*Conversation, 0, len(e.conversations))
	for _, c := range e.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetRecording ставит флаг записи, true если разговор найден
func (e *Endpoint) SetRecording(id string, on bool) bool {
	c, ok := e.conversations[id]
	if ok {
		c.Recording = on
	}
	return ok
}

type Extension struct {
	Endpoint
	Dnd bool
	// номер переадресации, пусто - выключена
	Cf  string
	Cfb string
	Cw  bool
}

func NewExtension(number, tech string) *Extension {
	return &Extension{Endpoint: newEndpoint(number, tech)}
}

type Trunk struct {
	Endpoint
}

func NewTrunk(number, tech string) *Trunk {
	return &Trunk{Endpoint: newEndpoint(number, tech)}
}

type EndpointView struct {
	Number        string                      `json:"exten"`
	Tech          string                      `json:"chanType"`
	IP            string                      `json:"ip"`
	Port          string                      `json:"port"`
	Name          string                      `json:"name"`
	UserAgent     string                      `json:"sipuseragent,omitempty"`
	Status        string                      `json:"status"`
	Dnd           bool                        `json:"dnd"`
	Cf            string                      `json:"cf"`
	Cfb           string                      `json:"cfb"`
	Cw            bool                        `json:"cw"`
	Conversations map[string]ConversationView `json:"conversations"`
}

func (e *Endpoint) view(now time.Time) EndpointView {
	v := EndpointView{
		Number:        e.Number,
		Tech:          e.Tech,
		IP:            e.IP,
		Port:          e.Port,
		Name:          e.Name,
		UserAgent:     e.UserAgent,
		Status:        e.Status,
		Conversations: make(map[string]ConversationView, len(e.conversations)),
	}
	for id, c := range e.conversations {
		v.Conversations[id] = c.View(now)
	}
	return v
}

func (e *Extension) View(now time.Time) EndpointView {
	v := e.Endpoint.view(now)
	v.Dnd, v.Cf, v.Cfb, v.Cw = e.Dnd, e.Cf, e.Cfb, e.Cw
	return v
}

func (t *Trunk) View(now time.Time) EndpointView {
	return t.Endpoint.view(now)
}
