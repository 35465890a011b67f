package ucase

import (
	"fmt"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

// Все команды сначала проверяют аргументы. При ошибке проверки запрос не
// отправляется, ошибка возвращается и сразу же передаётся в done. В любом
// случае done вызывается ровно один раз.

// reject завершает команду ошибкой проверки
func reject(err error, done Done) error {
	if done != nil {
		done(err)
	}
	return err
}

type target struct {
	conv *model.Conversation
}

// caller: номер владеет каналом-источником разговора
func (t target) caller(exten string) bool {
	return ownChannel(t.conv.Source, exten)
}

func (p *Proxy) extension(endpointType, exten string) (*model.Extension, error) {
	// до окончания старта модель неполная
	if !p.isReady() {
		return nil, ErrNotReady
	}
	if endpointType != EndpointExtension {
		return nil, fmt.Errorf("%w: %s", ErrWrongEndpointType, endpointType)
	}
	e, ok := p.extensions[exten]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, exten)
	}
	return e, nil
}

// lookup находит разговор внутреннего номера, каналы неизменяемы и
// используются вне мьютекса
func (p *Proxy) lookup(endpointType, exten, convID string) (target, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, err := p.extension(endpointType, exten)
	if err != nil {
		return target{}, err
	}
	c, ok := e.Conversation(convID)
	if !ok {
		return target{}, fmt.Errorf("%w: %s of %s", ErrNoConversation, convID, exten)
	}
	cp := *c
	return target{conv: &cp}, nil
}

func (p *Proxy) extenTech(endpointType, exten string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, err := p.extension(endpointType, exten)
	if err != nil {
		return "", err
	}
	return e.Tech, nil
}

func channelID(ch *model.Channel, convID string) (string, error) {
	if ch == nil {
		return "", fmt.Errorf("%w: %s", ErrNoChannel, convID)
	}
	return ch.ID, nil
}

// run отправляет одну команду и переводит ответ в done
func (p *Proxy) run(args command.Args, done Done) {
	p.cmd.Do(args, func(_ interface{}, err error) {
		if err != nil {
			p.log.Warnf("%s %s: %s", args.Command, args.Channel, err)
		}
		if done != nil {
			done(err)
		}
	})
}

// выбор канала: у звонящего - канал собеседника, иначе источник
func peerOrSource(t target, exten string) *model.Channel {
	if t.caller(exten) {
		return t.conv.Dest
	}
	return t.conv.Source
}

// у звонящего - свой канал-источник, иначе канал назначения
func sourceOrPeer(t target, exten string) *model.Channel {
	if t.caller(exten) {
		return t.conv.Source
	}
	return t.conv.Dest
}

func (p *Proxy) Hangup(endpointType, exten, convID string, done Done) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return reject(err, done)
	}
	ch := sourceOrPeer(t, exten)
	if !ownChannel(ch, exten) {
		return reject(fmt.Errorf("%w: %s in %s", ErrNotParticipant, exten, convID), done)
	}
	p.run(command.Args{Command: "hangup", Channel: ch.ID}, done)
	return nil
}

// Redirect уводит собеседника на номер to
func (p *Proxy) Redirect(endpointType, exten, convID, to string, done Done) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return reject(err, done)
	}
	ch, err := channelID(peerOrSource(t, exten), convID)
	if err != nil {
		return reject(err, done)
	}
	p.run(command.Args{Command: "redirectChannel", Channel: ch, To: to}, done)
	return nil
}

func (p *Proxy) AttendedTransfer(endpointType, exten, convID, to string, done Done) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return reject(err, done)
	}
	ch, err := channelID(sourceOrPeer(t, exten), convID)
	if err != nil {
		return reject(err, done)
	}
	p.run(command.Args{Command: "attendedTransfer", Channel: ch, To: to}, done)
	return nil
}

// TransferToVoicemail отправляет собеседника в ящик голосовой почты to
func (p *Proxy) TransferToVoicemail(endpointType, exten, convID, to string, done Done) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return reject(err, done)
	}
	ch, err := channelID(sourceOrPeer(t, exten), convID)
	if err != nil {
		return reject(err, done)
	}
	p.run(command.Args{Command: "transferToVoicemail", Channel: ch, To: to}, done)
	return nil
}

// Park паркует собеседника, по таймауту он вернётся к заявителю
func (p *Proxy) Park(endpointType, exten, convID string, done Done) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return reject(err, done)
	}
	toPark, toReturn := t.conv.Source, t.conv.Dest
	if t.caller(exten) {
		toPark, toReturn = t.conv.Dest, t.conv.Source
	}
	park, err := channelID(toPark, convID)
	if err != nil {
		return reject(err, done)
	}
	ret, err := channelID(toReturn, convID)
	if err != nil {
		return reject(err, done)
	}
	p.run(command.Args{Command: "parkChannel", Channel: park, Channel2: ret}, done)
	return nil
}

// PickupConversation забирает чужой разговор на номер dest
func (p *Proxy) PickupConversation(endpointType, exten, convID, dest string, done Done) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return reject(err, done)
	}
	if _, err := p.extenTech(EndpointExtension, dest); err != nil {
		return reject(err, done)
	}
	ch, err := channelID(peerOrSource(t, exten), convID)
	if err != nil {
		return reject(err, done)
	}
	p.run(command.Args{Command: "redirectChannel", Channel: ch, To: dest}, done)
	return nil
}

// PickupParking забирает запаркованный звонок на номер dest
func (p *Proxy) PickupParking(parking, dest string, done Done) error {
	if _, err := p.extenTech(EndpointExtension, dest); err != nil {
		return reject(err, done)
	}
	p.mu.RLock()
	pk, known := p.parkings[parking]
	var (
		pc     *model.ParkedCaller
		parked bool
	)
	if known {
		pc, parked = pk.Parked()
	}
	p.mu.RUnlock()
	switch {
	case !known:
		return reject(fmt.Errorf("%w: %s", ErrUnknownParking, parking), done)
	case !parked:
		return reject(fmt.Errorf("%w: %s", ErrNotParked, parking), done)
	}
	p.run(command.Args{Command: "redirectChannel", Channel: pc.Channel, To: dest}, done)
	return nil
}

// SpyListen: АТС звонит шпиону и подключает его к разговору только на
// прослушивание
func (p *Proxy) SpyListen(endpointType, exten, convID, spier string, done Done) error {
	return p.spy("spyListen", endpointType, exten, convID, spier, done)
}

// SpySpeak: то же, но шпиона слышит владелец канала
func (p *Proxy) SpySpeak(endpointType, exten, convID, spier string, done Done) error {
	return p.spy("spySpeak", endpointType, exten, convID, spier, done)
}

func (p *Proxy) spy(cmd, endpointType, exten, convID, spier string, done Done) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return reject(err, done)
	}
	spierTech, err := p.extenTech(EndpointExtension, spier)
	if err != nil {
		return reject(err, done)
	}
	ch, err := channelID(sourceOrPeer(t, exten), convID)
	if err != nil {
		return reject(err, done)
	}
	p.run(command.Args{Command: cmd, Channel: ch, Exten: spier, Tech: dialTech(spierTech)}, done)
	return nil
}

// Call звонит с номера exten на to
func (p *Proxy) Call(endpointType, exten, to string, done Done) error {
	tech, err := p.extenTech(endpointType, exten)
	if err != nil {
		return reject(err, done)
	}
	p.run(command.Args{Command: "call", Exten: exten, Tech: dialTech(tech), To: to}, done)
	return nil
}

func (p *Proxy) LogonDynQueues(exten string, done Done) error {
	tech, err := p.extenTech(EndpointExtension, exten)
	if err != nil {
		return reject(err, done)
	}
	p.run(command.Args{Command: "logonDynQueues", Exten: exten, Tech: dialTech(tech)}, done)
	return nil
}

// setFeature меняет запись AstDB и после успеха модель номера
func (p *Proxy) setFeature(cmd, exten string, args command.Args, apply func(e *model.Extension), done Done) error {
	if _, err := p.extenTech(EndpointExtension, exten); err != nil {
		return reject(err, done)
	}
	args.Command, args.Exten = cmd, exten
	p.cmd.Do(args, func(_ interface{}, err error) {
		if err == nil {
			p.mu.Lock()
			e, ok := p.extensions[exten]
			if ok {
				apply(e)
			}
			p.mu.Unlock()
			if ok {
				p.emitExten(exten)
			}
		} else {
			p.log.Warnf("%s %s: %s", cmd, exten, err)
		}
		if done != nil {
			done(err)
		}
	})
	return nil
}

func (p *Proxy) SetDnd(exten string, on bool, done Done) error {
	return p.setFeature("dndSet", exten, command.Args{Activate: on},
		func(e *model.Extension) { e.Dnd = on }, done)
}

func (p *Proxy) SetCw(exten string, on bool, done Done) error {
	return p.setFeature("cwSet", exten, command.Args{Activate: on},
		func(e *model.Extension) { e.Cw = on }, done)
}

// SetCf: to - номер переадресации, при выключении игнорируется
func (p *Proxy) SetCf(exten string, on bool, to string, done Done) error {
	return p.setFeature("cfSet", exten, command.Args{Activate: on, To: to},
		func(e *model.Extension) { e.Cf = forwardTo(on, to) }, done)
}

func (p *Proxy) SetCfb(exten string, on bool, to string, done Done) error {
	return p.setFeature("cfbSet", exten, command.Args{Activate: on, To: to},
		func(e *model.Extension) { e.Cfb = forwardTo(on, to) }, done)
}

func forwardTo(on bool, to string) string {
	if on {
		return to
	}
	return ""
}
