package event

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

type recTarget struct {
	calls []string
}

func (r *recTarget) add(format string, v ...interface{}) {
	r.calls = append(r.calls, fmt.Sprintf(format, v...))
}

func (r *recTarget) ExtenStatusChanged(e, s string)     { r.add("status %s %s", e, s) }
func (r *recTarget) PeerStatusChanged(p string)         { r.add("peer %s", p) }
func (r *recTarget) DndChanged(e string, on bool)       { r.add("dnd %s %v", e, on) }
func (r *recTarget) ExternalCall(n string)              { r.add("callin %s", n) }
func (r *recTarget) ConversationDialing(d Dialing)      { r.add("dial %+v", d) }
func (r *recTarget) ConversationConnected(a, b string)  { r.add("bridge %s %s", a, b) }
func (r *recTarget) ChannelHangup(ch, num, conn string) { r.add("hangup %s %s %s", ch, num, conn) }
func (r *recTarget) QueueCallerJoined(j QueueJoin)      { r.add("join %+v", j) }
func (r *recTarget) QueueCallerLeft(q, ch string)       { r.add("leave %s %s", q, ch) }
func (r *recTarget) QueueMemberAdded(c MemberChange)    { r.add("added %+v", c) }
func (r *recTarget) QueueMemberRemoved(q, m string)     { r.add("removed %s %s", q, m) }
func (r *recTarget) QueueMemberPaused(c MemberChange)   { r.add("paused %+v", c) }
func (r *recTarget) NewVoicemail(v Voicemail)           { r.add("vm %+v", v) }
func (r *recTarget) CallParked(p Parked)                { r.add("parked %+v", p) }
func (r *recTarget) CallUnparked(p string)              { r.add("unparked %s", p) }
func (r *recTarget) SpyStarted(spier, spyee string)     { r.add("spy %s %s", spier, spyee) }
func (r *recTarget) FullyBooted()                       { r.add("booted") }

func ev(kv ...string) ami.Message {
	m := ami.Message{Type: ami.Event, Headers: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		m.Headers[kv[i]] = kv[i+1]
	}
	return m
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name string
		msg  ami.Message
		want []string
	}{
		{"extension status", ev("event", "ExtensionStatus", "exten", "214", "status", "1"), []string{"status 214 1"}},
		{"peer status", ev("event", "PeerStatus", "peer", "SIP/214", "peerstatus", "Reachable"), []string{"peer SIP/214"}},
		{"dnd on", ev("event", "UserEvent", "userevent", "UpdateDB", "key", "DND", "agent", "214", "value", "ON"), []string{"dnd 214 true"}},
		{"dnd without agent", ev("event", "UserEvent", "userevent", "UpdateDB", "key", "DND", "value", "ON"), nil},
		{"call in", ev("event", "UserEvent", "userevent", "CallIn", "value", "0612345"), []string{"callin 0612345"}},
		{"dial begin", ev("event", "Dial", "subevent", "Begin", "channel", "SIP/200-1", "destination", "SIP/300-2", "calleridnum", "200", "connectedlinenum", "300"),
			[]string{"dial {Channel:SIP/200-1 Destination:SIP/300-2 CallerNum:200 DialingNum:300}"}},
		{"dial end ignored", ev("event", "Dial", "subevent", "End", "channel", "SIP/200-1"), nil},
		{"bridge link", ev("event", "Bridge", "bridgestate", "Link", "callerid1", "200", "callerid2", "300"), []string{"bridge 200 300"}},
		{"bridge unlink", ev("event", "Bridge", "bridgestate", "Unlink", "callerid1", "200", "callerid2", "300"), nil},
		{"hangup", ev("event", "Hangup", "channel", "SIP/200-1", "calleridnum", "200", "connectedlinenum", "300"), []string{"hangup SIP/200-1 200 300"}},
		{"join", ev("event", "Join", "queue", "401", "channel", "SIP/t-1", "calleridnum", "0612", "calleridname", "Bob", "position", "2"),
			[]string{"join {Queue:401 Channel:SIP/t-1 Num:0612 Name:Bob Position:2}"}},
		{"leave", ev("event", "Leave", "queue", "401", "channel", "SIP/t-1"), []string{"leave 401 SIP/t-1"}},
		{"member paused", ev("event", "QueueMemberPaused", "queue", "401", "location", "Local/214@from-queue/n", "paused", "1", "reason", "lunch"),
			[]string{"paused {Queue:401 Member:214 Name: Membership: Paused:true Reason:lunch}"}},
		{"member removed", ev("event", "QueueMemberRemoved", "queue", "401", "location", "SIP/214"), []string{"removed 401 214"}},
		{"voicemail", ev("event", "MessageWaiting", "mailbox", "214@default", "new", "2", "old", "5"), []string{"vm {Exten:214 Context:default New:2 Old:5}"}},
		{"voicemail bad mailbox", ev("event", "MessageWaiting", "mailbox", "214"), nil},
		{"parked", ev("event", "ParkedCall", "exten", "71", "channel", "SIP/t-1", "from", "SIP/214-5", "timeout", "45"),
			[]string{"parked {Parking:71 Channel:SIP/t-1 From:SIP/214-5 CallerNum: CallerName: Timeout:45}"}},
		{"unparked timeout", ev("event", "ParkedCallTimeOut", "exten", "71"), []string{"unparked 71"}},
		{"spy", ev("event", "ChanSpyStart", "spyerchannel", "SIP/214-9", "spyeechannel", "SIP/200-1"), []string{"spy SIP/214-9 SIP/200-1"}},
		{"booted", ev("event", "FullyBooted"), []string{"booted"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &recTarget{}
			reg := NewRegistry(target, nil, nil)
			assert.True(t, reg.Dispatch(tt.msg))
			assert.Equal(t, tt.want, target.calls)
		})
	}
}

func TestUnhandledEvent(t *testing.T) {
	reg := NewRegistry(&recTarget{}, nil, nil)
	assert.False(t, reg.Dispatch(ev("event", "VarSet")))
}

func TestHandlerPanicContained(t *testing.T) {
	reg := NewRegistry(&recTarget{}, map[string]Handler{
		"hangup": HandlerFunc(func(Target, ami.Message) { panic("boom") }),
	}, nil)
	assert.NotPanics(t, func() { reg.Dispatch(ev("event", "Hangup")) })
}
