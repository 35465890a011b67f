// Package command содержит реестр командных плагинов: каждый плагин строит
// один запрос к АТС, собирает относящиеся к нему ответы и события и ровно
// один раз вызывает продолжение вызывающего.
package command

import (
	"errors"
	"fmt"

	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrActionTimeout  = errors.New("action timeout")
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrNotFound       = errors.New("not found")
)

// ActionError - ответ АТС "Response: Error"
type ActionError struct {
	Command string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// Callback вызывается ровно один раз: с результатом или с ошибкой
type Callback func(res interface{}, err error)

// Conn - то, что нужно плагину от соединения
type Conn interface {
	Send(a ami.Action) error
}

type Plugin interface {
	// Execute возвращает ошибку только при неверных аргументах, ничего не
	// отправив. Иначе продолжение будет вызвано позже ровно один раз.
	Execute(conn Conn, args Args, cb Callback) error
	// OnMessage получает каждое входящее сообщение
	OnMessage(msg ami.Message)
}

// плагины с буферами строк чистят их по таймауту запроса
type forgetter interface {
	Forget(id string)
}

// Args - объединение параметров всех команд, Command выбирает плагин
type Args struct {
	Command string
	Exten   string
	Tech    string
	Queue   string
	Channel string
	// второй канал, например куда вернуть звонящего после парковки
	Channel2 string
	To       string
	Val      string
	Activate bool
	Digit    string
	Sequence string
	Filepath string
	Parking  string
}

func needArgs(args Args, fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i+1] == "" {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidArgs, args.Command, fields[i])
		}
	}
	return nil
}

type Options struct {
	// контекст диалплана для redirect/originate
	Context          string
	VoicemailContext string
	// код входа в динамические очереди
	QueueLogonCode string
	ParkTimeout    string
}

func (o Options) withDefaults() Options {
	if o.Context == "" {
		o.Context = "from-internal"
	}
	if o.VoicemailContext == "" {
		o.VoicemailContext = "ext-local"
	}
	if o.QueueLogonCode == "" {
		o.QueueLogonCode = "*45"
	}
	return o
}
