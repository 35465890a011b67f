package event

import (
	"strings"

	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

// Handlers - обработчики по имени события в нижнем регистре
func Handlers() map[string]Handler {
	return map[string]Handler{
		"extensionstatus":    HandlerFunc(extensionStatus),
		"peerstatus":         HandlerFunc(peerStatus),
		"userevent":          HandlerFunc(userEvent),
		"dial":               HandlerFunc(dial),
		"bridge":             HandlerFunc(bridge),
		"hangup":             HandlerFunc(hangup),
		"join":               HandlerFunc(join),
		"leave":              HandlerFunc(leave),
		"queuememberadded":   HandlerFunc(queueMemberAdded),
		"queuememberremoved": HandlerFunc(queueMemberRemoved),
		"queuememberpaused":  HandlerFunc(queueMemberPaused),
		"messagewaiting":     HandlerFunc(messageWaiting),
		"parkedcall":         HandlerFunc(parkedCall),
		"unparkedcall":       HandlerFunc(unparked),
		"parkedcalltimeout":  HandlerFunc(unparked),
		"parkedcallgiveup":   HandlerFunc(unparked),
		"chanspystart":       HandlerFunc(chanSpyStart),
		"fullybooted":        HandlerFunc(fullyBooted),
	}
}

func extensionStatus(t Target, m ami.Message) {
	if m.Has("exten") && m.Has("status") {
		t.ExtenStatusChanged(m.Get("exten"), m.Get("status"))
	}
}

func peerStatus(t Target, m ami.Message) {
	if p := m.Get("peer"); p != "" {
		t.PeerStatusChanged(p)
	}
}

func userEvent(t Target, m ami.Message) {
	switch m.Get("userevent") {
	case "UpdateDB":
		if m.Get("key") == "DND" && m.Get("agent") != "" && m.Get("value") != "" {
			t.DndChanged(m.Get("agent"), m.Get("value") == "ON")
		}
	case "CallIn":
		if v := m.Get("value"); v != "" {
			t.ExternalCall(v)
		}
	}
}

func dial(t Target, m ami.Message) {
	if !strings.EqualFold(m.Get("subevent"), "begin") || m.Get("channel") == "" || m.Get("destination") == "" {
		return
	}
	t.ConversationDialing(Dialing{
		Channel:     m.Get("channel"),
		Destination: m.Get("destination"),
		CallerNum:   m.Get("calleridnum"),
		DialingNum:  m.Get("connectedlinenum"),
	})
}

func bridge(t Target, m ami.Message) {
	if m.Get("bridgestate") == "Link" {
		t.ConversationConnected(m.Get("callerid1"), m.Get("callerid2"))
	}
}

func hangup(t Target, m ami.Message) {
	if m.Get("channel") != "" {
		t.ChannelHangup(m.Get("channel"), m.Get("calleridnum"), m.Get("connectedlinenum"))
	}
}

func join(t Target, m ami.Message) {
	if m.Get("queue") == "" || m.Get("channel") == "" {
		return
	}
	t.QueueCallerJoined(QueueJoin{
		Queue:    m.Get("queue"),
		Channel:  m.Get("channel"),
		Num:      m.Get("calleridnum"),
		Name:     m.Get("calleridname"),
		Position: atoi(m.Get("position")),
	})
}

func leave(t Target, m ami.Message) {
	if m.Get("queue") != "" && m.Get("channel") != "" {
		t.QueueCallerLeft(m.Get("queue"), m.Get("channel"))
	}
}

func memberChange(m ami.Message) MemberChange {
	return MemberChange{
		Queue:      m.Get("queue"),
		Member:     memberNumber(m.Get("location")),
		Name:       m.Get("membername"),
		Membership: m.Get("membership"),
		Paused:     m.Get("paused") == "1",
		Reason:     m.Get("reason"),
	}
}

func queueMemberAdded(t Target, m ami.Message) {
	if m.Get("queue") != "" && m.Get("location") != "" {
		t.QueueMemberAdded(memberChange(m))
	}
}

func queueMemberRemoved(t Target, m ami.Message) {
	if m.Get("queue") != "" && m.Get("location") != "" {
		t.QueueMemberRemoved(m.Get("queue"), memberNumber(m.Get("location")))
	}
}

func queueMemberPaused(t Target, m ami.Message) {
	if m.Get("queue") != "" && m.Get("location") != "" {
		t.QueueMemberPaused(memberChange(m))
	}
}

// mailbox вида 214@default
func messageWaiting(t Target, m ami.Message) {
	mb := strings.SplitN(m.Get("mailbox"), "@", 2)
	if len(mb) != 2 || mb[0] == "" {
		return
	}
	t.NewVoicemail(Voicemail{Exten: mb[0], Context: mb[1], New: atoi(m.Get("new")), Old: atoi(m.Get("old"))})
}

func parkedCall(t Target, m ami.Message) {
	if m.Get("exten") == "" {
		return
	}
	t.CallParked(Parked{
		Parking:    m.Get("exten"),
		Channel:    m.Get("channel"),
		From:       m.Get("from"),
		CallerNum:  m.Get("calleridnum"),
		CallerName: m.Get("calleridname"),
		Timeout:    atoi(m.Get("timeout")),
	})
}

func unparked(t Target, m ami.Message) {
	if p := m.Get("exten"); p != "" {
		t.CallUnparked(p)
	}
}

func chanSpyStart(t Target, m ami.Message) {
	if m.Get("spyerchannel") != "" {
		t.SpyStarted(m.Get("spyerchannel"), m.Get("spyeechannel"))
	}
}

func fullyBooted(t Target, _ ami.Message) {
	t.FullyBooted()
}
