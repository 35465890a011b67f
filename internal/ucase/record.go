package ucase

import (
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

type RecordStatus string

const (
	RecordStarted          RecordStatus = "started"
	RecordStopped          RecordStatus = "stopped"
	RecordAlreadyRecording RecordStatus = "already_recording"
	RecordNotRecording     RecordStatus = "not_recording"
)

// RecordDone вызывается ровно один раз, при ошибке статус пустой
type RecordDone func(status RecordStatus, err error)

// recordPath: <root>/yyyy/mm/dd/nethcti-<dest>-<source>-<yyyymmdd>-<hhmmss>-<uniqueid>,
// расширение добавит АТС по формату записи
func recordPath(root string, src *model.Channel, now time.Time) string {
	t := src.StartTime()
	if t.IsZero() {
		t = now
	}
	name := fmt.Sprintf("nethcti-%s-%s-%s-%s-%s",
		src.BridgedNum, src.CallerNum, t.Format("20060102"), t.Format("150405"), src.UniqueID)
	return path.Join(root, t.Format("2006"), t.Format("01"), t.Format("02"), name)
}

func rejectRecord(err error, done RecordDone) error {
	if done != nil {
		done("", err)
	}
	return err
}

// recordChannel: пишется канал-источник, если его нет - назначение
func recordChannel(c *model.Conversation) *model.Channel {
	if c.Source != nil {
		return c.Source
	}
	return c.Dest
}

// StartRecord: повторный запуск не отправляет команду и отвечает
// RecordAlreadyRecording
func (p *Proxy) StartRecord(endpointType, exten, convID string, done RecordDone) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return rejectRecord(err, done)
	}
	ch := recordChannel(t.conv)

	p.mu.Lock()
	if _, ok := p.recording[convID]; ok {
		p.mu.Unlock()
		p.log.Infof("conversation %s is already recording", convID)
		if done != nil {
			done(RecordAlreadyRecording, nil)
		}
		return nil
	}
	// занимаем запись до ответа АТС, чтобы второй запрос не ушёл следом
	p.recording[convID] = struct{}{}
	p.mu.Unlock()

	file := recordPath(p.opts.RecordPath, ch, p.opts.Now())
	p.log.Infof("record channel %s of exten %s to %s", ch.ID, exten, file)
	p.cmd.Do(command.Args{Command: "recordCall", Channel: ch.ID, Filepath: file}, func(_ interface{}, err error) {
		if err != nil {
			p.mu.Lock()
			delete(p.recording, convID)
			p.mu.Unlock()
			p.log.Warnf("record %s: %s", convID, err)
			if done != nil {
				done("", err)
			}
			return
		}
		p.setRecordStatus(convID, true)
		if done != nil {
			done(RecordStarted, nil)
		}
	})
	return nil
}

func (p *Proxy) StopRecord(endpointType, exten, convID string, done RecordDone) error {
	t, err := p.lookup(endpointType, exten, convID)
	if err != nil {
		return rejectRecord(err, done)
	}
	ch := recordChannel(t.conv)

	p.mu.RLock()
	_, ok := p.recording[convID]
	p.mu.RUnlock()
	if !ok {
		if done != nil {
			done(RecordNotRecording, nil)
		}
		return nil
	}

	p.cmd.Do(command.Args{Command: "stopRecordCall", Channel: ch.ID}, func(_ interface{}, err error) {
		if err != nil {
			p.log.Warnf("stop record %s: %s", convID, err)
			if done != nil {
				done("", err)
			}
			return
		}
		p.mu.Lock()
		delete(p.recording, convID)
		p.mu.Unlock()
		p.setRecordStatus(convID, false)
		if done != nil {
			done(RecordStopped, nil)
		}
	})
	return nil
}

// setRecordStatus ставит флаг всем номерам, у которых есть этот разговор
func (p *Proxy) setRecordStatus(convID string, on bool) {
	var changed []string
	p.mu.Lock()
	for num, e := range p.extensions {
		if e.SetRecording(convID, on) {
			changed = append(changed, num)
		}
	}
	p.mu.Unlock()
	sort.Strings(changed)
	for _, num := range changed {
		p.emitExten(num)
	}
}
