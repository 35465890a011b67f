package ucase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

const dtmfDigits = "0123456789*#ABCDabcd"

// SendDTMF проигрывает последовательность в активный канал номера, а если
// канала нет - звонит на номер и передаёт её после ответа
func (p *Proxy) SendDTMF(exten, sequence string, done Done) error {
	tech, err := p.extenTech(EndpointExtension, exten)
	if err != nil {
		return reject(err, done)
	}
	if sequence == "" || strings.Trim(sequence, dtmfDigits) != "" {
		return reject(fmt.Errorf("%w: dtmf sequence %q", command.ErrInvalidArgs, sequence), done)
	}
	prefix := strings.ToLower(dialTech(tech) + "/" + exten + "-")

	p.cmd.Do(command.Args{Command: "listChannels"}, func(res interface{}, err error) {
		if err != nil {
			if done != nil {
				done(err)
			}
			return
		}
		t, _ := res.(model.ChannelTable)
		ids := make([]string, 0, len(t))
		for id := range t {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if strings.HasPrefix(strings.ToLower(id), prefix) {
				// продолжение выполняется в цикле чтения, ждать там нельзя
				go p.playSequence(id, sequence, done)
				return
			}
		}
		p.log.Infof("no channel of %s, calling it to send dtmf", exten)
		p.run(command.Args{Command: "callAndSendDTMF", Exten: exten, Tech: dialTech(tech), Sequence: sequence}, done)
	})
	return nil
}

// playSequence шлёт по одному тону и ждёт ответа перед следующим
func (p *Proxy) playSequence(channel, sequence string, done Done) {
	var err error
	for i, digit := range sequence {
		if i > 0 {
			p.opts.Sleep(p.opts.DTMFDelay)
		}
		if _, err = p.call(command.Args{Command: "playDTMF", Channel: channel, Digit: string(digit)}); err != nil {
			p.log.Warnf("playing dtmf %q to %s: %s", digit, channel, err)
			break
		}
	}
	if err == nil {
		p.log.Infof("played dtmf sequence %q to %s", sequence, channel)
	}
	if done != nil {
		done(err)
	}
}
