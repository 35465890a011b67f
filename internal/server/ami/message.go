// Package ami реализует клиентскую часть протокола менеджера Asterisk:
// разбор потока на сообщения, корреляционные идентификаторы и сессию.
package ami

import (
	"strings"
)

type MessageType string

const (
	Response MessageType = "response"
	Event    MessageType = "event"
)

// разобранное входящее сообщение, ключи в нижнем регистре без дефисов
type Message struct {
	Type    MessageType
	Headers map[string]string
}

func (m Message) Get(key string) string {
	return m.Headers[key]
}

func (m Message) Has(key string) bool {
	_, ok := m.Headers[key]
	return ok
}

func (m Message) ActionID() string {
	return m.Headers["actionid"]
}

// имя события в нижнем регистре, пусто для ответов
func (m Message) Event() string {
	if m.Type != Event {
		return ""
	}
	return strings.ToLower(m.Headers["event"])
}

func (m Message) IsSuccess() bool {
	return m.Type == Response && strings.EqualFold(m.Headers["response"], "success")
}

func (m Message) IsError() bool {
	return m.Type == Response && strings.EqualFold(m.Headers["response"], "error")
}

type Field struct {
	Key   string
	Value string
}

// исходящий запрос; ActionID всегда пишется последним
type Action struct {
	Name   string
	ID     string
	Fields []Field
}

// NewAction собирает запрос из пар ключ/значение
func NewAction(name string, kv ...string) Action {
	a := Action{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		a.Fields = append(a.Fields, Field{kv[i], kv[i+1]})
	}
	return a
}

func (a Action) With(key, value string) Action {
	a.Fields = append(append([]Field(nil), a.Fields...), Field{key, value})
	return a
}

func (a Action) Get(key string) string {
	for _, f := range a.Fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}

func (a Action) Encode() []byte {
	var b strings.Builder
	b.WriteString("Action: ")
	b.WriteString(a.Name)
	b.WriteString("\r\n")
	for _, f := range a.Fields {
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
	if a.ID != "" {
		b.WriteString("ActionID: ")
		b.WriteString(a.ID)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
