package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nethesis/nethcti-server-sub001/internal/model"
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

func noArgs(name string) func(args Args) (ami.Action, string, error) {
	return func(Args) (ami.Action, string, error) {
		return ami.NewAction(name), "", nil
	}
}

// channelRow переводит CoreShowChannel в строку таблицы каналов
func channelRow(m ami.Message) model.ChannelRow {
	status := model.ChannelState(m.Get("channelstate"))
	return model.ChannelRow{
		model.KeyChannel:        m.Get("channel"),
		model.KeyType:           model.ChannelType(m.Get("channel"), m.Get("bridgedchannel"), status),
		model.KeyStatus:         status,
		model.KeyDuration:       m.Get("duration"),
		model.KeyUniqueID:       m.Get("uniqueid"),
		model.KeyCallerNum:      m.Get("calleridnum"),
		model.KeyCallerName:     m.Get("calleridname"),
		model.KeyBridgedNum:     m.Get("connectedlinenum"),
		model.KeyBridgedName:    m.Get("connectedlinename"),
		model.KeyBridgedChannel: m.Get("bridgedchannel"),
	}
}

func channelTable(filter func(m ami.Message) bool) func(string, []ami.Message) (interface{}, error) {
	return func(_ string, rows []ami.Message) (interface{}, error) {
		t := model.ChannelTable{}
		for _, m := range rows {
			if !m.Has("calleridnum") || !filter(m) {
				continue
			}
			t[m.Get("channel")] = channelRow(m)
		}
		return t, nil
	}
}

func newListChannels(p *Pending) Plugin {
	return newCollector("listChannels", p, "CoreShowChannelsComplete", []string{"CoreShowChannel"},
		func(Args) (ami.Action, string, error) {
			return ami.NewAction("CoreShowChannels"), "listChannels", nil
		},
		channelTable(func(ami.Message) bool { return true }))
}

// extenChannels: номер зашит в идентификатор запроса
func newExtenChannels(p *Pending) Plugin {
	c := newCollector("extenChannels", p, "CoreShowChannelsComplete", []string{"CoreShowChannel"},
		func(args Args) (ami.Action, string, error) {
			if err := needArgs(args, "exten", args.Exten); err != nil {
				return ami.Action{}, "", err
			}
			return ami.NewAction("CoreShowChannels"), prefixed("extenChannels", args.Exten), nil
		}, nil)
	c.finish = func(id string, rows []ami.Message) (interface{}, error) {
		exten := ami.IDPart(id, 1)
		return channelTable(func(m ami.Message) bool { return m.Get("calleridnum") == exten })(id, rows)
	}
	return c
}

func peerNames(_ string, rows []ami.Message) (interface{}, error) {
	var out []string
	for _, m := range rows {
		if n := m.Get("objectname"); n != "" && m.Has("channeltype") {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func newListSipPeers(p *Pending) Plugin {
	return newCollector("listSipPeers", p, "PeerlistComplete", []string{"PeerEntry"},
		func(Args) (ami.Action, string, error) {
			return ami.NewAction("SIPpeers"), "listSipPeers", nil
		}, peerNames)
}

func newListIaxPeers(p *Pending) Plugin {
	return newCollector("listIaxPeers", p, "PeerlistComplete", []string{"PeerEntry"},
		func(Args) (ami.Action, string, error) {
			return ami.NewAction("IAXpeerlist"), "listIaxPeers", nil
		}, peerNames)
}

// iaxDetails: отдельного запроса нет, ищем пир в общем списке
func newIaxDetails(p *Pending) Plugin {
	return newCollector("iaxDetails", p, "PeerlistComplete", []string{"PeerEntry"},
		func(args Args) (ami.Action, string, error) {
			if err := needArgs(args, "exten", args.Exten); err != nil {
				return ami.Action{}, "", err
			}
			return ami.NewAction("IAXpeerlist"), prefixed("iaxDetails", args.Exten), nil
		},
		func(id string, rows []ami.Message) (interface{}, error) {
			exten := ami.IDPart(id, 1)
			for _, m := range rows {
				if m.Get("objectname") != exten {
					continue
				}
				return PeerDetails{
					Exten:  exten,
					Tech:   model.TechIAX,
					IP:     nullIP(m.Get("ipaddress")),
					Port:   nullPort(m.Get("ipport")),
					Status: strings.ToLower(m.Get("status")),
				}, nil
			}
			return nil, fmt.Errorf("%w: iax peer %s", ErrNotFound, exten)
		})
}

func newListQueues(p *Pending) Plugin {
	return newCollector("listQueues", p, "QueueSummaryComplete", []string{"QueueSummary"},
		noArgs("QueueSummary"),
		func(_ string, rows []ami.Message) (interface{}, error) {
			var out []string
			for _, m := range rows {
				if q := m.Get("queue"); q != "" {
					out = append(out, q)
				}
			}
			sort.Strings(out)
			return out, nil
		})
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Local/214@from-queue/n -> 214
func memberNumber(location string) string {
	s := strings.SplitN(location, "@", 2)[0]
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func newQueueDetails(p *Pending) Plugin {
	return newCollector("queueDetails", p, "QueueStatusComplete", []string{"QueueParams", "QueueMember", "QueueEntry"},
		func(args Args) (ami.Action, string, error) {
			if err := needArgs(args, "queue", args.Queue); err != nil {
				return ami.Action{}, "", err
			}
			return ami.NewAction("QueueStatus", "Queue", args.Queue), "queueDetails", nil
		},
		func(_ string, rows []ami.Message) (interface{}, error) {
			var d QueueDetails
			for _, m := range rows {
				switch m.Event() {
				case "queueparams":
					d.Queue = m.Get("queue")
					d.HoldTime = atoi(m.Get("holdtime"))
					d.TalkTime = atoi(m.Get("talktime"))
					d.Completed = atoi(m.Get("completed"))
					d.Abandoned = atoi(m.Get("abandoned"))
					d.ServiceLevel = atoi(m.Get("servicelevel"))
					d.ServiceLevelPerf, _ = strconv.ParseFloat(m.Get("servicelevelperf"), 64)
				case "queuemember":
					last, _ := strconv.ParseInt(m.Get("lastcall"), 10, 64)
					d.Members = append(d.Members, QueueMemberInfo{
						Member:     memberNumber(m.Get("location")),
						Name:       m.Get("name"),
						Type:       m.Get("membership"),
						Paused:     m.Get("paused") == "1",
						CallsTaken: atoi(m.Get("callstaken")),
						LastCall:   last,
					})
				case "queueentry":
					d.Entries = append(d.Entries, QueueEntryInfo{
						Channel:  m.Get("channel"),
						Num:      m.Get("calleridnum"),
						Name:     m.Get("calleridname"),
						Position: atoi(m.Get("position")),
						Wait:     atoi(m.Get("wait")),
					})
				}
			}
			if d.Queue == "" {
				return nil, fmt.Errorf("%w: queue params", ErrNotFound)
			}
			return d, nil
		})
}

func newListVoicemail(p *Pending) Plugin {
	return newCollector("listVoicemail", p, "VoicemailUserEntryComplete", []string{"VoicemailUserEntry"},
		noArgs("VoicemailUsersList"),
		func(_ string, rows []ami.Message) (interface{}, error) {
			out := make([]Voicemail, 0, len(rows))
			for _, m := range rows {
				out = append(out, Voicemail{
					Mailbox:  m.Get("voicemailbox"),
					Context:  m.Get("vmcontext"),
					FullName: m.Get("fullname"),
					New:      atoi(m.Get("newmessagecount")),
					Old:      atoi(m.Get("oldmessagecount")),
				})
			}
			return out, nil
		})
}

func newListParkedChannels(p *Pending) Plugin {
	return newCollector("listParkedChannels", p, "ParkedCallsComplete", []string{"ParkedCall"},
		noArgs("ParkedCalls"),
		func(_ string, rows []ami.Message) (interface{}, error) {
			out := make(map[string]ParkedChannel, len(rows))
			for _, m := range rows {
				pc := ParkedChannel{
					Parking:    m.Get("exten"),
					Channel:    m.Get("channel"),
					Timeout:    atoi(m.Get("timeout")),
					CallerNum:  m.Get("calleridnum"),
					CallerName: m.Get("calleridname"),
					From:       m.Get("from"),
				}
				out[pc.Parking] = pc
			}
			return out, nil
		})
}

func newTrunkStatus(p *Pending) Plugin {
	return newCollector("trunkStatus", p, "SIPpeerstatusComplete", []string{"PeerStatus"},
		func(args Args) (ami.Action, string, error) {
			if err := needArgs(args, "trunk", args.Exten); err != nil {
				return ami.Action{}, "", err
			}
			return ami.NewAction("SIPpeerstatus", "Peer", args.Exten), prefixed("trunkStatus", args.Exten), nil
		},
		func(id string, rows []ami.Message) (interface{}, error) {
			trunk := ami.IDPart(id, 1)
			if len(rows) == 0 {
				return nil, fmt.Errorf("%w: trunk %s", ErrNotFound, trunk)
			}
			return TrunkStatus{Trunk: trunk, Status: model.TrunkStatus(rows[0].Get("peerstatus"))}, nil
		})
}

// listParkings: события Parkinglot идут без ActionID, поэтому буфер общий
// и все ожидающие запросы завершаются вместе. Буфер очищается на каждом
// ParkinglotsComplete, даже если ждать уже некому.
type listParkings struct {
	base
	mu   sync.Mutex
	list map[string]struct{}
}

func newListParkings(p *Pending) *listParkings {
	return &listParkings{base: base{"listParkings", p}, list: make(map[string]struct{})}
}

func (l *listParkings) Execute(conn Conn, _ Args, cb Callback) error {
	l.send(conn, l.name, ami.NewAction("Parkinglots"), cb)
	return nil
}

func (l *listParkings) OnMessage(msg ami.Message) {
	switch {
	case msg.Event() == "parkinglot":
		start, err1 := strconv.Atoi(msg.Get("startexten"))
		stop, err2 := strconv.Atoi(msg.Get("stopexten"))
		if err1 != nil || err2 != nil || stop < start {
			return
		}
		l.mu.Lock()
		for n := start; n <= stop; n++ {
			l.list[strconv.Itoa(n)] = struct{}{}
		}
		l.mu.Unlock()
	case msg.Event() == "parkinglotscomplete":
		l.mu.Lock()
		list := make([]string, 0, len(l.list))
		for n := range l.list {
			list = append(list, n)
		}
		l.list = make(map[string]struct{})
		l.mu.Unlock()
		sort.Slice(list, func(i, j int) bool { return atoi(list[i]) < atoi(list[j]) })
		l.pending.ResolveAll(l.name, list, nil)
	case msg.IsError() && l.mine(msg):
		l.pending.Resolve(msg.ActionID(), nil, l.actionError(msg))
	}
}

func nullIP(s string) string {
	if s == "(null)" || s == "-none-" {
		return ""
	}
	return s
}

func nullPort(s string) string {
	if s == "0" {
		return ""
	}
	return s
}
