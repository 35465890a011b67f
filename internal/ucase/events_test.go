package ucase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nethesis/nethcti-server-sub001/internal/event"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

func eventParked(parking, channel, from string) event.Parked {
	return event.Parked{Parking: parking, Channel: channel, From: from, CallerNum: "300", CallerName: "Carol", Timeout: 45}
}

func TestParkingEvents(t *testing.T) {
	h := started(t, Options{})

	h.proxy.CallParked(eventParked("71", "SIP/300-00000003", "SIP/214-0000001b"))
	ns := h.drain()
	require.Len(t, ns, 1)
	assert.Equal(t, model.ParkingChanged, ns[0].Name)
	v := ns[0].Payload.(model.ParkingView)
	require.NotNil(t, v.Parked)
	assert.Equal(t, "214", v.Parked.ParkedBy)
	assert.Equal(t, "300", v.Parked.Num)

	h.proxy.CallUnparked("71")
	ns = h.drain()
	require.Len(t, ns, 1)
	assert.Nil(t, ns[0].Payload.(model.ParkingView).Parked)

	// неизвестная парковка молчит
	h.proxy.CallParked(eventParked("99", "SIP/300-00000003", ""))
	assert.Empty(t, h.drain())
}

func TestQueueEvents(t *testing.T) {
	now := time.Unix(1700000100, 0)
	h := started(t, Options{Now: func() time.Time { return now }})

	h.proxy.QueueCallerJoined(event.QueueJoin{Queue: "401", Channel: "SIP/trunk-00000009", Num: "0612345678", Position: 1})
	h.proxy.QueueMemberAdded(event.MemberChange{Queue: "401", Member: "214", Name: "Alice", Membership: "dynamic"})
	h.proxy.QueueMemberPaused(event.MemberChange{Queue: "401", Member: "214", Paused: true, Reason: "lunch"})

	q := h.proxy.Queues()["401"]
	require.Contains(t, q.WaitingCallers, "SIP/trunk-00000009")
	require.Contains(t, q.Members, "214")
	assert.True(t, q.Members["214"].Paused)
	assert.Equal(t, "lunch", q.Members["214"].PausedReason)

	h.proxy.QueueCallerLeft("401", "SIP/trunk-00000009")
	h.proxy.QueueMemberRemoved("401", "214")
	// повторное удаление ничего не меняет
	h.proxy.QueueMemberRemoved("401", "214")
	h.proxy.QueueMemberPaused(event.MemberChange{Queue: "401", Member: "214", Paused: true})

	q = h.proxy.Queues()["401"]
	assert.Empty(t, q.WaitingCallers)
	assert.Empty(t, q.Members)
	assert.Equal(t, []string{
		"queueChanged 401", "queueChanged 401", "queueChanged 401",
		"queueChanged 401", "queueChanged 401",
	}, names(h.drain()))
}

func TestExtensionEvents(t *testing.T) {
	h := started(t, Options{})

	h.proxy.ExtenStatusChanged("214", "1")
	h.proxy.DndChanged("200", true)
	h.proxy.ExtenStatusChanged("999", "1")

	e, _ := h.proxy.Extension("214")
	assert.Equal(t, model.StatusBusy, e.Status)
	e, _ = h.proxy.Extension("200")
	assert.True(t, e.Dnd)

	h.proxy.NewVoicemail(event.Voicemail{Exten: "214", Context: "default", New: 2, Old: 1})
	h.proxy.ExternalCall("0612345678")

	ns := h.drain()
	assert.Equal(t, []string{"extenChanged 214", "extenChanged 200", "newVoicemail 214", "newExternalCall 0612345678"}, names(ns))
	assert.Equal(t, model.VoicemailView{Exten: "214", Context: "default", CountNew: 2, CountOld: 1}, ns[2].Payload)
}

func TestPeerStatusRefreshesDetails(t *testing.T) {
	h := started(t, Options{})

	h.proxy.PeerStatusChanged("SIP/214")
	assert.Len(t, h.cmd.sent("sipDetails"), 1)
	assert.Len(t, h.cmd.sent("extenStatus"), 1)
	assert.Equal(t, []string{"extenChanged 214"}, names(h.drain()))

	h.proxy.PeerStatusChanged("SIP/unknown")
	h.proxy.PeerStatusChanged("garbage")
	assert.Len(t, h.cmd.sent("sipDetails"), 1)
}

func TestDialingPatchesUnbridgedLegs(t *testing.T) {
	h := started(t, Options{})
	// оба плеча ещё без моста и в состоянии up
	h.pbx.setChannels(model.ChannelTable{
		"SIP/200-0000002a": row("SIP/200-0000002a", "6", "200", "", "", "1700000100.1"),
		"SIP/214-0000002b": row("SIP/214-0000002b", "6", "214", "", "", "1700000100.2"),
	})

	h.proxy.ConversationDialing(event.Dialing{
		Channel:     "SIP/200-0000002a",
		Destination: "SIP/214-0000002b",
		CallerNum:   "200",
		DialingNum:  "214",
	})

	const id = "SIP/200-0000002a>SIP/214-0000002b"
	for _, num := range []string{"200", "214"} {
		e, _ := h.proxy.Extension(num)
		assert.Contains(t, e.Conversations, id, num)
	}
	assert.Len(t, h.cmd.sent("listChannels"), 1)
	assert.Equal(t, []string{"extenChanged 200", "extenChanged 214"}, names(h.drain()))
}

func TestSpyStartedRefreshesSpier(t *testing.T) {
	h := started(t, Options{})
	h.proxy.SpyStarted("SIP/214-00000031", "SIP/200-0000001a")
	assert.Equal(t, []string{"extenChanged 214"}, names(h.drain()))
}
