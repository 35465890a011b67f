package ucase

import (
	"strings"
	"sync"
	"time"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

// Start собирает состояние один раз за сессию: сверяет структуру с АТС,
// заполняет агрегаты и разговоры. Блокирует, поэтому из обработчика
// события запускается в отдельной горутине.
func (p *Proxy) Start() {
	p.startOnce.Do(func() {
		p.log.Infof("AMI fully booted, building state")
		start := time.Now()
		p.validateStruct()
		p.initAggregates()
		if err := p.refreshAll(false); err != nil {
			p.log.Warnf("initial channels list: %s", err)
		}
		close(p.ready)
		p.mu.RLock()
		p.log.Infof("state ready in %s: %d extensions, %d trunks, %d queues, %d parkings",
			time.Since(start).Truncate(time.Millisecond), len(p.extensions), len(p.trunks), len(p.queues), len(p.parkings))
		p.mu.RUnlock()
	})
}

type peerSets struct {
	queues, parkings, sip, iax map[string]struct{}
}

func toSet(res interface{}) map[string]struct{} {
	list, _ := res.([]string)
	s := make(map[string]struct{}, len(list))
	for _, v := range list {
		s[v] = struct{}{}
	}
	return s
}

// validateStruct удаляет из структуры то, чего нет на АТС. Если список
// какой-то категории получить не удалось, её записи не трогаются.
func (p *Proxy) validateStruct() {
	var (
		wg   sync.WaitGroup
		sets peerSets
	)
	fetch := func(name string, dst *map[string]struct{}) {
		defer wg.Done()
		res, err := p.call(command.Args{Command: name})
		if err != nil {
			p.log.Warnf("%s: %s, skipping structure check", name, err)
			return
		}
		*dst = toSet(res)
	}
	wg.Add(4)
	go fetch("listQueues", &sets.queues)
	go fetch("listParkings", &sets.parkings)
	go fetch("listSipPeers", &sets.sip)
	go fetch("listIaxPeers", &sets.iax)
	wg.Wait()

	check := func(set map[string]struct{}, entries []model.StructEntry) {
		if set == nil {
			return
		}
		for _, e := range entries {
			if _, ok := set[e.Number()]; ok {
				continue
			}
			p.log.Warnf("inconsistency between structure file and asterisk for %s", e.Key)
			p.topology.Remove(e.Key)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	check(sets.queues, p.topology.Entries(model.EntryQueue, ""))
	check(sets.parkings, p.topology.Entries(model.EntryParking, ""))
	check(sets.sip, p.topology.Entries(model.EntryExtension, model.TechSIP))
	check(sets.sip, p.topology.Entries(model.EntryTrunk, model.TechSIP))
	check(sets.iax, p.topology.Entries(model.EntryExtension, model.TechIAX))
	check(sets.iax, p.topology.Entries(model.EntryTrunk, model.TechIAX))
}

func (p *Proxy) initAggregates() {
	p.mu.Lock()
	for _, e := range p.topology.Entries(model.EntryExtension, "") {
		ext := model.NewExtension(e.Number(), e.Tech)
		ext.Name = e.Label
		p.extensions[ext.Number] = ext
	}
	for _, e := range p.topology.Entries(model.EntryTrunk, "") {
		t := model.NewTrunk(e.Number(), e.Tech)
		t.Name = e.Label
		p.trunks[t.Number] = t
	}
	for _, e := range p.topology.Entries(model.EntryQueue, "") {
		q := model.NewQueue(e.Number())
		q.Name = e.Label
		p.queues[q.Number] = q
	}
	for _, e := range p.topology.Entries(model.EntryParking, "") {
		pk := model.NewParking(e.Number())
		pk.Name = e.Label
		p.parkings[pk.Number] = pk
	}
	extens := make(map[string]string, len(p.extensions))
	for n, e := range p.extensions {
		extens[n] = e.Tech
	}
	trunks := make(map[string]string, len(p.trunks))
	for n, t := range p.trunks {
		trunks[n] = t.Tech
	}
	queues := make([]string, 0, len(p.queues))
	for n := range p.queues {
		queues = append(queues, n)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for n, tech := range extens {
		wg.Add(1)
		go func(n, tech string) {
			defer wg.Done()
			p.initExtension(n, tech)
		}(n, tech)
	}
	for n, tech := range trunks {
		wg.Add(1)
		go func(n, tech string) {
			defer wg.Done()
			p.initTrunk(n, tech)
		}(n, tech)
	}
	for _, n := range queues {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			p.initQueue(n)
		}(n)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.initParkings()
	}()
	wg.Wait()
}

func detailsCommand(tech string) string {
	if tech == model.TechIAX {
		return "iaxDetails"
	}
	return "sipDetails"
}

func (p *Proxy) initExtension(num, tech string) {
	details, err := p.call(command.Args{Command: detailsCommand(tech), Exten: num})
	if err != nil {
		p.log.Warnf("extension %s details: %s", num, err)
	}
	status, err := p.call(command.Args{Command: "extenStatus", Exten: num})
	if err != nil {
		p.log.Warnf("extension %s status: %s", num, err)
	}
	features := map[string]command.FeatureStatus{}
	for _, name := range []string{"dndGet", "cfGet", "cfbGet", "cwGet"} {
		res, err := p.call(command.Args{Command: name, Exten: num})
		if err != nil {
			p.log.Warnf("extension %s %s: %s", num, name, err)
			continue
		}
		if fs, ok := res.(command.FeatureStatus); ok {
			features[name] = fs
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ext, ok := p.extensions[num]
	if !ok {
		return
	}
	if d, ok := details.(command.PeerDetails); ok {
		applyDetails(&ext.Endpoint, d)
	}
	if s, ok := status.(command.ExtenStatus); ok {
		ext.Status = s.Status
	}
	ext.Dnd = features["dndGet"].Enabled
	if fs := features["cfGet"]; fs.Enabled {
		ext.Cf = fs.Value
	}
	if fs := features["cfbGet"]; fs.Enabled {
		ext.Cfb = fs.Value
	}
	ext.Cw = features["cwGet"].Enabled
}

func applyDetails(e *model.Endpoint, d command.PeerDetails) {
	e.IP, e.Port = d.IP, d.Port
	if d.Name != "" {
		e.Name = d.Name
	}
	if d.UserAgent != "" {
		e.UserAgent = d.UserAgent
	}
}

func (p *Proxy) initTrunk(num, tech string) {
	details, err := p.call(command.Args{Command: detailsCommand(tech), Exten: num})
	if err != nil {
		p.log.Warnf("trunk %s details: %s", num, err)
	}
	var status string
	if tech == model.TechSIP {
		res, err := p.call(command.Args{Command: "trunkStatus", Exten: num})
		if err != nil {
			p.log.Warnf("trunk %s status: %s", num, err)
		}
		if ts, ok := res.(command.TrunkStatus); ok {
			status = ts.Status
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trunks[num]
	if !ok {
		return
	}
	if d, ok := details.(command.PeerDetails); ok {
		applyDetails(&t.Endpoint, d)
		// у IAX статус приходит вместе с деталями: "ok (1 ms)"
		if tech == model.TechIAX && strings.HasPrefix(d.Status, "ok") {
			status = model.StatusOnline
		}
	}
	if status != "" {
		t.Status = status
	}
}

func (p *Proxy) initQueue(num string) {
	res, err := p.call(command.Args{Command: "queueDetails", Queue: num})
	if err != nil {
		p.log.Warnf("queue %s details: %s", num, err)
		return
	}
	d, ok := res.(command.QueueDetails)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if q, ok := p.queues[num]; ok {
		p.applyQueueDetails(q, d)
	}
}

func (p *Proxy) applyQueueDetails(q *model.Queue, d command.QueueDetails) {
	now := p.opts.Now()
	q.HoldTime, q.TalkTime = d.HoldTime, d.TalkTime
	q.Completed, q.Abandoned = d.Completed, d.Abandoned
	q.ServiceLevel, q.ServiceLevelPerf = d.ServiceLevel, d.ServiceLevelPerf
	q.ClearMembers()
	for _, m := range d.Members {
		qm := &model.QueueMember{
			Member:     m.Member,
			Name:       m.Name,
			Type:       m.Type,
			Paused:     m.Paused,
			CallsTaken: m.CallsTaken,
		}
		if m.LastCall > 0 {
			qm.LastCall = time.Unix(m.LastCall, 0)
		}
		q.AddMember(qm)
	}
	q.ClearWaitingCallers()
	for _, e := range d.Entries {
		q.AddWaitingCaller(&model.QueueWaitingCaller{
			Channel:  e.Channel,
			Num:      e.Num,
			Name:     e.Name,
			Position: e.Position,
			JoinTime: now.Add(-time.Duration(e.Wait) * time.Second),
		})
	}
}

func (p *Proxy) initParkings() {
	res, err := p.call(command.Args{Command: "listParkedChannels"})
	if err != nil {
		p.log.Warnf("parked channels: %s", err)
		return
	}
	parked, _ := res.(map[string]command.ParkedChannel)
	p.mu.Lock()
	defer p.mu.Unlock()
	for num, pc := range parked {
		pk, ok := p.parkings[num]
		if !ok {
			continue
		}
		pk.Park(&model.ParkedCaller{
			Channel:  pc.Channel,
			Num:      pc.CallerNum,
			Name:     pc.CallerName,
			Timeout:  pc.Timeout,
			ParkedAt: p.opts.Now(),
			ParkedBy: model.ChannelEndpoint(pc.From),
		})
	}
}
