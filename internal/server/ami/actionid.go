package ami

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

const idSeparator = "_"

// IDs выдаёт корреляционные идентификаторы вида имя_миллисекунды
type IDs struct {
	mu   sync.Mutex
	now  func() time.Time
	last map[string]int64
}

func NewIDs() *IDs {
	return &IDs{now: time.Now, last: make(map[string]int64)}
}

// WithClock подменяет часы, нужно в тестах
func (g *IDs) WithClock(now func() time.Time) *IDs {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
	return g
}

// New возвращает идентификатор, которого нет среди занятых. При совпадении
// метки времени суффикс сдвигается вверх до свободного значения.
func (g *IDs) New(name string, taken func(id string) bool) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	suffix := g.now().UnixNano() / int64(time.Millisecond)
	// не выдаём повторно метку внутри одного кванта даже без карты ожидания
	if last, ok := g.last[name]; ok && suffix <= last {
		suffix = last + 1
	}
	for {
		id := name + idSeparator + strconv.FormatInt(suffix, 10)
		if taken == nil || !taken(id) {
			g.last[name] = suffix
			return id
		}
		suffix++
	}
}

// CommandName достаёт имя команды из идентификатора
func CommandName(id string) (string, bool) {
	i := strings.Index(id, idSeparator)
	if i < 0 {
		return "", false
	}
	return id[:i], true
}

// IDPart возвращает n-й сегмент идентификатора, например номер в cfGet_214_...
func IDPart(id string, n int) string {
	parts := strings.Split(id, idSeparator)
	if n < 0 || n >= len(parts) {
		return ""
	}
	return parts[n]
}
