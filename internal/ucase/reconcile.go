package ucase

import (
	"sort"
	"strings"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

// служебные каналы диалплана разговорами не считаются
func skipChannel(id string) bool {
	return strings.HasPrefix(id, "Local/") || strings.Contains(id, "@from")
}

// channels разбирает таблицу, неполные строки пропускаются
func (p *Proxy) channels(t model.ChannelTable) map[string]*model.Channel {
	out := make(map[string]*model.Channel, len(t))
	for id, row := range t {
		ch, err := model.NewChannel(row)
		if err != nil {
			p.log.Warnf("channel %s: %s", id, err)
			continue
		}
		out[ch.ID] = ch
	}
	return out
}

func opposite(a, b *model.Channel) bool {
	return a.IsSource() && b.IsDestination() || a.IsDestination() && b.IsSource()
}

// peerOf: канал моста, иначе единственная строка противоположного типа,
// у которой номера звонящего и соединённой линии зеркальны нашим
func peerOf(ch *model.Channel, chans map[string]*model.Channel) *model.Channel {
	if ch.BridgedChannel != "" {
		if peer, ok := chans[ch.BridgedChannel]; ok {
			return peer
		}
	}
	if ch.BridgedNum == "" {
		return nil
	}
	var found *model.Channel
	for _, c := range chans {
		if c.ID == ch.ID || c.CallerNum != ch.BridgedNum || c.BridgedNum != ch.CallerNum || !opposite(ch, c) {
			continue
		}
		if found != nil {
			return nil
		}
		found = c
	}
	return found
}

// ownChannel: канал принадлежит номеру num по имени пира или номеру звонящего
func ownChannel(ch *model.Channel, num string) bool {
	return ch != nil && (model.ChannelEndpoint(ch.ID) == num || ch.IsExtension(num))
}

func techMatches(ch *model.Channel, tech string) bool {
	return strings.EqualFold(model.ChannelTech(ch.ID), dialTech(tech))
}

// conversationsOf строит разговоры одного владельца из снимка каналов
func conversationsOf(owner, tech string, chans map[string]*model.Channel) []*model.Conversation {
	ids := make([]string, 0, len(chans))
	for id := range chans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*model.Conversation
	for _, id := range ids {
		ch := chans[id]
		if skipChannel(id) || model.ChannelEndpoint(id) != owner || !techMatches(ch, tech) {
			continue
		}
		peer := peerOf(ch, chans)
		src, dst := ch, peer
		if ch.IsDestination() {
			src, dst = peer, ch
		}
		c, err := model.NewConversation(owner, src, dst)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

func conversationKeys(e *model.Endpoint) string {
	convs := e.Conversations()
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	return strings.Join(ids, ",")
}

// rebuild заменяет разговоры конечной точки, true если набор изменился
func (p *Proxy) rebuild(e *model.Endpoint, chans map[string]*model.Channel) bool {
	before := conversationKeys(e)
	e.RemoveAllConversations()
	for _, c := range conversationsOf(e.Number, e.Tech, chans) {
		_, c.Recording = p.recording[c.ID]
		e.AddConversation(c)
	}
	return before != conversationKeys(e)
}

// applyAll пересобирает все разговоры и чистит таблицу записей
func (p *Proxy) applyAll(t model.ChannelTable, emit bool) {
	chans := p.channels(t)

	p.mu.Lock()
	var extens, trunks []string
	present := map[string]struct{}{}
	for num, e := range p.extensions {
		if p.rebuild(&e.Endpoint, chans) {
			extens = append(extens, num)
		}
		for _, c := range e.Conversations() {
			present[c.ID] = struct{}{}
		}
	}
	for num, tr := range p.trunks {
		if p.rebuild(&tr.Endpoint, chans) {
			trunks = append(trunks, num)
		}
		for _, c := range tr.Conversations() {
			present[c.ID] = struct{}{}
		}
	}
	for id := range p.recording {
		if _, ok := present[id]; !ok {
			delete(p.recording, id)
		}
	}
	p.mu.Unlock()

	if !emit {
		return
	}
	sort.Strings(extens)
	for _, num := range extens {
		p.emitExten(num)
	}
	sort.Strings(trunks)
	for _, num := range trunks {
		p.emitTrunk(num)
	}
}

// applyExtens пересобирает только указанные номера и уведомляет о каждом
func (p *Proxy) applyExtens(t model.ChannelTable, nums []string) {
	chans := p.channels(t)
	var changed []string
	p.mu.Lock()
	for _, num := range nums {
		if e, ok := p.extensions[num]; ok {
			p.rebuild(&e.Endpoint, chans)
			changed = append(changed, num)
		}
	}
	p.mu.Unlock()
	for _, num := range changed {
		p.emitExten(num)
	}
}

// refreshAll - блокирующая полная пересборка
func (p *Proxy) refreshAll(emit bool) error {
	res, err := p.call(command.Args{Command: "listChannels"})
	if err != nil {
		return err
	}
	t, _ := res.(model.ChannelTable)
	p.applyAll(t, emit)
	return nil
}

// refreshAllAsync для обработчиков событий: ответ придёт продолжением
func (p *Proxy) refreshAllAsync() {
	p.cmd.Do(command.Args{Command: "listChannels"}, func(res interface{}, err error) {
		if err != nil {
			p.log.Warnf("listChannels: %s", err)
			return
		}
		t, _ := res.(model.ChannelTable)
		p.applyAll(t, true)
	})
}

// refreshExtens пересобирает разговоры указанных номеров, patch может
// поправить таблицу до сборки
func (p *Proxy) refreshExtens(patch func(model.ChannelTable), nums ...string) {
	nums = p.knownExtens(nums...)
	if len(nums) == 0 {
		return
	}
	p.cmd.Do(command.Args{Command: "listChannels"}, func(res interface{}, err error) {
		if err != nil {
			p.log.Warnf("listChannels: %s", err)
			return
		}
		t, _ := res.(model.ChannelTable)
		if t == nil {
			t = model.ChannelTable{}
		}
		if patch != nil {
			patch(t)
		}
		p.applyExtens(t, nums)
	})
}

// knownExtens отбирает известные номера без повторов
func (p *Proxy) knownExtens(nums ...string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, n := range nums {
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		if _, ok := p.extensions[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
