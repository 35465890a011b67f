package ami

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	banner     = "Asterisk Call Manager"
	terminator = "\r\n\r\n"
)

var ErrMalformed = errors.New("malformed AMI message")

// Framer режет поток байт на сообщения. Не потокобезопасен - им владеет
// единственный цикл чтения.
type Framer struct {
	buf     bytes.Buffer
	greeted bool
}

// Feed добавляет кусок данных и возвращает все завершённые сообщения.
// Ошибки разбора не прерывают обработку остальных сообщений.
func (f *Framer) Feed(chunk []byte) ([]Message, []error) {
	f.buf.Write(chunk)

	if !f.greeted && !f.skipBanner() {
		return nil, nil
	}

	var (
		msgs []Message
		errs []error
	)
	for {
		data := f.buf.Bytes()
		end := bytes.Index(data, []byte(terminator))
		if end < 0 {
			break
		}
		raw := string(data[:end])
		f.buf.Next(end + len(terminator))

		// пустые блоки между сообщениями не считаем ошибкой
		if strings.TrimSpace(raw) == "" {
			continue
		}
		m, err := parse(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, errs
}

// skipBanner убирает строку приветствия, если она есть. Возвращает false,
// если данных пока недостаточно для решения.
func (f *Framer) skipBanner() bool {
	data := f.buf.Bytes()
	n := len(data)
	if n < len(banner) {
		if strings.HasPrefix(banner, string(data)) {
			return false
		}
		f.greeted = true
		return true
	}
	if !bytes.HasPrefix(data, []byte(banner)) {
		f.greeted = true
		return true
	}
	eol := bytes.Index(data, []byte("\r\n"))
	if eol < 0 {
		return false
	}
	f.buf.Next(eol + 2)
	f.greeted = true
	return true
}

func parse(raw string) (Message, error) {
	m := Message{Headers: make(map[string]string)}

	for i, line := range strings.Split(raw, "\r\n") {
		kv := strings.SplitN(line, ": ", 2)
		if len(kv) != 2 {
			// строка без разделителя, у первой строки это ошибка формата
			if i == 0 {
				return Message{}, fmt.Errorf("%w: first line %q", ErrMalformed, line)
			}
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(kv[0], "-", ""))
		if i == 0 {
			switch MessageType(key) {
			case Response, Event:
				m.Type = MessageType(key)
			default:
				return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, key)
			}
		}
		m.Headers[key] = kv[1]

		// многозначные поля вида a^b^c, при нескольких таких строках
		// остаётся последняя
		if strings.Contains(line, "^") {
			var extra strings.Builder
			for _, part := range strings.Split(line, "^")[1:] {
				extra.WriteString(part)
				extra.WriteString("^")
			}
			m.Headers["extra"] = extra.String()
		}
	}
	return m, nil
}
