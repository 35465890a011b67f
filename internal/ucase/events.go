package ucase

import (
	"strings"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/event"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

var _ event.Target = (*Proxy)(nil)

// обработчики вызываются из цикла чтения: ждать ответов здесь нельзя,
// только продолжения

func (p *Proxy) ExtenStatusChanged(exten, statusCode string) {
	p.mu.Lock()
	e, ok := p.extensions[exten]
	if ok {
		e.Status = model.ExtenStatus(statusCode)
	}
	p.mu.Unlock()
	if ok {
		p.emitExten(exten)
	}
}

// PeerStatusChanged: peer вида SIP/214, детали перечитываются
func (p *Proxy) PeerStatusChanged(peer string) {
	parts := strings.SplitN(peer, "/", 2)
	if len(parts) != 2 {
		return
	}
	num := parts[1]
	p.mu.RLock()
	ext, isExt := p.extensions[num]
	tr, isTrunk := p.trunks[num]
	var tech string
	switch {
	case isExt:
		tech = ext.Tech
	case isTrunk:
		tech = tr.Tech
	}
	p.mu.RUnlock()

	switch {
	case isExt:
		p.cmd.Do(command.Args{Command: detailsCommand(tech), Exten: num}, func(res interface{}, err error) {
			if err != nil {
				p.log.Warnf("extension %s details: %s", num, err)
				return
			}
			d, _ := res.(command.PeerDetails)
			p.mu.Lock()
			if e, ok := p.extensions[num]; ok {
				applyDetails(&e.Endpoint, d)
			}
			p.mu.Unlock()
			p.refreshExtenStatus(num)
		})
	case isTrunk && tech == model.TechSIP:
		p.cmd.Do(command.Args{Command: "trunkStatus", Exten: num}, func(res interface{}, err error) {
			if err != nil {
				p.log.Warnf("trunk %s status: %s", num, err)
				return
			}
			ts, _ := res.(command.TrunkStatus)
			p.mu.Lock()
			if t, ok := p.trunks[num]; ok {
				t.Status = ts.Status
			}
			p.mu.Unlock()
			p.emitTrunk(num)
		})
	case isTrunk:
		p.cmd.Do(command.Args{Command: "iaxDetails", Exten: num}, func(res interface{}, err error) {
			status := model.StatusOffline
			d, ok := res.(command.PeerDetails)
			if err == nil && ok && strings.HasPrefix(d.Status, "ok") {
				status = model.StatusOnline
			}
			p.mu.Lock()
			if t, ok := p.trunks[num]; ok {
				if err == nil {
					applyDetails(&t.Endpoint, d)
				}
				t.Status = status
			}
			p.mu.Unlock()
			p.emitTrunk(num)
		})
	}
}

func (p *Proxy) refreshExtenStatus(num string) {
	p.cmd.Do(command.Args{Command: "extenStatus", Exten: num}, func(res interface{}, err error) {
		if err != nil {
			p.log.Warnf("extension %s status: %s", num, err)
		} else if s, ok := res.(command.ExtenStatus); ok {
			p.mu.Lock()
			if e, ok := p.extensions[num]; ok {
				e.Status = s.Status
			}
			p.mu.Unlock()
		}
		p.emitExten(num)
	})
}

func (p *Proxy) DndChanged(exten string, on bool) {
	p.mu.Lock()
	e, ok := p.extensions[exten]
	if ok {
		e.Dnd = on
	}
	p.mu.Unlock()
	if ok {
		p.emitExten(exten)
	}
}

func (p *Proxy) ExternalCall(number string) {
	p.emit(model.NewExternalCall, number, number)
}

// ConversationDialing: в момент Dial мост ещё не построен, поэтому оба
// канала связываются вручную и типы пересчитываются
func (p *Proxy) ConversationDialing(d event.Dialing) {
	patch := func(t model.ChannelTable) {
		src, okSrc := t[d.Channel]
		dst, okDst := t[d.Destination]
		if !okSrc || !okDst {
			return
		}
		src[model.KeyBridgedChannel] = d.Destination
		dst[model.KeyBridgedChannel] = d.Channel
		src[model.KeyType] = model.ChannelType(d.Channel, d.Destination, src[model.KeyStatus])
		dst[model.KeyType] = model.ChannelType(d.Destination, d.Channel, dst[model.KeyStatus])
	}
	p.refreshExtens(patch,
		model.ChannelEndpoint(d.Channel),
		d.CallerNum,
		d.DialingNum,
		model.ChannelEndpoint(d.Destination))
}

func (p *Proxy) ConversationConnected(num1, num2 string) {
	p.refreshExtens(nil, num1, num2)
}

// ChannelHangup: полная пересборка заодно чистит таблицу записей
func (p *Proxy) ChannelHangup(_, _, _ string) {
	p.refreshAllAsync()
}

func (p *Proxy) QueueCallerJoined(j event.QueueJoin) {
	p.mu.Lock()
	q, ok := p.queues[j.Queue]
	if ok {
		q.AddWaitingCaller(&model.QueueWaitingCaller{
			Channel:  j.Channel,
			Num:      j.Num,
			Name:     j.Name,
			Position: j.Position,
			JoinTime: p.opts.Now(),
		})
	}
	p.mu.Unlock()
	if ok {
		p.emitQueue(j.Queue)
	}
}

func (p *Proxy) QueueCallerLeft(queue, channel string) {
	p.mu.Lock()
	removed := false
	if q, ok := p.queues[queue]; ok {
		removed = q.RemoveWaitingCaller(channel)
	}
	p.mu.Unlock()
	if removed {
		p.emitQueue(queue)
	}
}

func (p *Proxy) QueueMemberAdded(c event.MemberChange) {
	p.mu.Lock()
	q, ok := p.queues[c.Queue]
	if ok {
		q.AddMember(&model.QueueMember{
			Member:       c.Member,
			Name:         c.Name,
			Type:         c.Membership,
			Paused:       c.Paused,
			PausedReason: c.Reason,
		})
	}
	p.mu.Unlock()
	if ok {
		p.emitQueue(c.Queue)
	}
}

func (p *Proxy) QueueMemberRemoved(queue, member string) {
	p.mu.Lock()
	removed := false
	if q, ok := p.queues[queue]; ok {
		removed = q.RemoveMember(member)
	}
	p.mu.Unlock()
	if removed {
		p.emitQueue(queue)
	}
}

func (p *Proxy) QueueMemberPaused(c event.MemberChange) {
	p.mu.Lock()
	changed := false
	if q, ok := p.queues[c.Queue]; ok {
		if m, ok := q.Member(c.Member); ok {
			m.Paused = c.Paused
			m.PausedReason = c.Reason
			if !c.Paused {
				m.PausedReason = ""
			}
			changed = true
		}
	}
	p.mu.Unlock()
	if changed {
		p.emitQueue(c.Queue)
	}
}

func (p *Proxy) NewVoicemail(v event.Voicemail) {
	p.mu.RLock()
	_, ok := p.extensions[v.Exten]
	p.mu.RUnlock()
	if !ok {
		return
	}
	p.emit(model.NewVoicemail, v.Exten, model.VoicemailView{
		Exten:    v.Exten,
		Context:  v.Context,
		CountNew: v.New,
		CountOld: v.Old,
	})
}

// CallParked: From - канал того, кто парковал
func (p *Proxy) CallParked(e event.Parked) {
	p.mu.Lock()
	pk, ok := p.parkings[e.Parking]
	if ok {
		pk.Park(&model.ParkedCaller{
			Channel:  e.Channel,
			Num:      e.CallerNum,
			Name:     e.CallerName,
			Timeout:  e.Timeout,
			ParkedAt: p.opts.Now(),
			ParkedBy: model.ChannelEndpoint(e.From),
		})
	}
	p.mu.Unlock()
	if ok {
		p.emitParking(e.Parking)
	}
}

func (p *Proxy) CallUnparked(parking string) {
	p.mu.Lock()
	pk, ok := p.parkings[parking]
	if ok {
		pk.Unpark()
	}
	p.mu.Unlock()
	if ok {
		p.emitParking(parking)
	}
}

// SpyStarted: у шпиона появился разговор с ChanSpy
func (p *Proxy) SpyStarted(spierChannel, _ string) {
	p.refreshExtens(nil, model.ChannelEndpoint(spierChannel))
}

func (p *Proxy) FullyBooted() {
	go p.Start()
}
