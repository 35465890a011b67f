package command

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nethesis/nethcti-server-sub001/internal/model"
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []ami.Action
	err  error
}

func (c *fakeConn) Send(a ami.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, a)
	return nil
}

func (c *fakeConn) last() ami.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

func msg(t ami.MessageType, kv ...string) ami.Message {
	m := ami.Message{Type: t, Headers: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		m.Headers[kv[i]] = kv[i+1]
	}
	return m
}

func newTestRegistry() (*Registry, *fakeConn) {
	c := &fakeConn{}
	p := NewPending(nil, 0, nil)
	return NewRegistry(c, p, Plugins(p, Options{}), nil), c
}

type result struct {
	res interface{}
	err error
	n   int
}

func (r *result) cb(res interface{}, err error) {
	r.res, r.err = res, err
	r.n++
}

func TestRegistryUnknownCommand(t *testing.T) {
	reg, c := newTestRegistry()
	var r result
	reg.Do(Args{Command: "nope"}, r.cb)
	assert.ErrorIs(t, r.err, ErrUnknownCommand)
	assert.Equal(t, 1, r.n)
	assert.Empty(t, c.sent)
}

func TestRegistryInvalidArgsNoNetwork(t *testing.T) {
	reg, c := newTestRegistry()
	var r result
	reg.Do(Args{Command: "hangup"}, r.cb)
	assert.ErrorIs(t, r.err, ErrInvalidArgs)
	assert.Empty(t, c.sent)
	assert.Equal(t, 0, reg.Pending().Len())
}

func TestRegistrySendFailure(t *testing.T) {
	reg, c := newTestRegistry()
	c.err = errors.New("broken pipe")
	var r result
	reg.Do(Args{Command: "hangup", Channel: "SIP/200-1"}, r.cb)
	assert.EqualError(t, r.err, "broken pipe")
	assert.Equal(t, 0, reg.Pending().Len())
}

func TestListChannelsAccumulatorPerAction(t *testing.T) {
	reg, c := newTestRegistry()
	var r1, r2 result
	reg.Do(Args{Command: "listChannels"}, r1.cb)
	id1 := c.last().ID
	reg.Do(Args{Command: "listChannels"}, r2.cb)
	id2 := c.last().ID
	require.NotEqual(t, id1, id2)

	row := func(id, ch, state, num, bridged string) ami.Message {
		return msg(ami.Event, "event", "CoreShowChannel", "actionid", id, "channel", ch, "channelstate", state,
			"calleridnum", num, "calleridname", "n"+num, "connectedlinenum", "", "connectedlinename", "",
			"bridgedchannel", bridged, "duration", "00:00:05", "uniqueid", "1700000000.1")
	}
	reg.Dispatch(msg(ami.Response, "response", "Success", "actionid", id1))
	reg.Dispatch(row(id1, "SIP/200-1", "6", "200", "SIP/300-2"))
	reg.Dispatch(row(id2, "SIP/214-3", "5", "214", ""))
	reg.Dispatch(row(id1, "SIP/300-2", "6", "300", "SIP/200-1"))
	reg.Dispatch(msg(ami.Event, "event", "CoreShowChannelsComplete", "actionid", id1))

	require.Equal(t, 1, r1.n)
	require.NoError(t, r1.err)
	table := r1.res.(model.ChannelTable)
	require.Len(t, table, 2)
	assert.Equal(t, model.TypeSource, table["SIP/200-1"][model.KeyType])
	assert.Equal(t, model.TypeDestination, table["SIP/300-2"][model.KeyType])
	assert.Equal(t, "up", table["SIP/300-2"][model.KeyStatus])
	assert.Equal(t, 0, r2.n)

	reg.Dispatch(msg(ami.Event, "event", "CoreShowChannelsComplete", "actionid", id2))
	require.Equal(t, 1, r2.n)
	t2 := r2.res.(model.ChannelTable)
	require.Len(t, t2, 1)
	assert.Equal(t, model.TypeDestination, t2["SIP/214-3"][model.KeyType])

	// буферы очищены, повторный Complete ничего не делает
	assert.Equal(t, 0, reg.plugins["listChannels"].(*collector).buffered())
	reg.Dispatch(msg(ami.Event, "event", "CoreShowChannelsComplete", "actionid", id2))
	assert.Equal(t, 1, r2.n)
	assert.Equal(t, 0, reg.Pending().Len())
}

func TestExtenChannelsFilters(t *testing.T) {
	reg, c := newTestRegistry()
	var r result
	reg.Do(Args{Command: "extenChannels", Exten: "214"}, r.cb)
	id := c.last().ID
	assert.Contains(t, id, "extenChannels_214_")

	for _, num := range []string{"214", "200"} {
		reg.Dispatch(msg(ami.Event, "event", "CoreShowChannel", "actionid", id, "channel", "SIP/"+num+"-1",
			"channelstate", "6", "calleridnum", num, "calleridname", "", "connectedlinenum", "",
			"connectedlinename", "", "duration", "1"))
	}
	reg.Dispatch(msg(ami.Event, "event", "CoreShowChannelsComplete", "actionid", id))
	table := r.res.(model.ChannelTable)
	assert.Len(t, table, 1)
	assert.Contains(t, table, "SIP/214-1")
}

func TestDBGetSet(t *testing.T) {
	tests := []struct {
		name     string
		replies  func(id string) []ami.Message
		want     FeatureStatus
		family   string
		prefixed string
	}{
		{
			name: "cf active",
			replies: func(id string) []ami.Message {
				return []ami.Message{
					msg(ami.Response, "response", "Success", "actionid", id, "message", "Result will follow"),
					msg(ami.Event, "event", "DBGetResponse", "family", "CF", "key", "214", "val", "3331234", "actionid", id),
				}
			},
			want:   FeatureStatus{Exten: "214", Enabled: true, Value: "3331234"},
			family: "CF", prefixed: "cfGet",
		},
		{
			name: "dnd off",
			replies: func(id string) []ami.Message {
				return []ami.Message{msg(ami.Response, "response", "Error", "actionid", id, "message", "Database entry not found")}
			},
			want:   FeatureStatus{Exten: "214"},
			family: "DND", prefixed: "dndGet",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, c := newTestRegistry()
			var r result
			reg.Do(Args{Command: tt.prefixed, Exten: "214"}, r.cb)
			a := c.last()
			assert.Equal(t, "DBGet", a.Name)
			assert.Equal(t, tt.family, a.Get("Family"))
			assert.Contains(t, a.ID, tt.prefixed+"_214_")
			for _, m := range tt.replies(a.ID) {
				reg.Dispatch(m)
			}
			assert.Equal(t, 1, r.n)
			assert.NoError(t, r.err)
			assert.Equal(t, tt.want, r.res)
		})
	}
}

func TestDBSet(t *testing.T) {
	reg, c := newTestRegistry()
	var r result

	reg.Do(Args{Command: "cfSet", Exten: "214", Activate: true, To: "3331234"}, r.cb)
	a := c.last()
	assert.Equal(t, "DBPut", a.Name)
	assert.Equal(t, "3331234", a.Get("Val"))
	reg.Dispatch(msg(ami.Response, "response", "Success", "actionid", a.ID, "message", "Updated database successfully"))
	assert.NoError(t, r.err)

	reg.Do(Args{Command: "cfSet", Exten: "214", Activate: true}, r.cb)
	assert.ErrorIs(t, r.err, ErrInvalidArgs)

	reg.Do(Args{Command: "dndSet", Exten: "214"}, r.cb)
	a = c.last()
	assert.Equal(t, "DBDel", a.Name)
	reg.Dispatch(msg(ami.Response, "response", "Error", "actionid", a.ID, "message", "Database entry not found"))
	assert.NoError(t, r.err)

	reg.Do(Args{Command: "cwSet", Exten: "214", Activate: true}, r.cb)
	a = c.last()
	assert.Equal(t, "ENABLED", a.Get("Val"))
	reg.Dispatch(msg(ami.Response, "response", "Error", "actionid", a.ID, "message", "Failed to update entry"))
	var ae *ActionError
	require.ErrorAs(t, r.err, &ae)
	assert.Equal(t, "cwSet", ae.Command)
	assert.Equal(t, "Failed to update entry", ae.Message)
}

func TestListParkingsSharedAccumulator(t *testing.T) {
	reg, c := newTestRegistry()
	var r1, r2 result
	reg.Do(Args{Command: "listParkings"}, r1.cb)
	id1 := c.last().ID
	reg.Do(Args{Command: "listParkings"}, r2.cb)

	reg.Dispatch(msg(ami.Event, "event", "Parkinglot", "name", "default", "startexten", "71", "stopexten", "73", "timeout", "45"))
	reg.Dispatch(msg(ami.Event, "event", "Parkinglot", "name", "default", "startexten", "71", "stopexten", "73", "timeout", "45"))
	reg.Dispatch(msg(ami.Event, "event", "ParkinglotsComplete", "actionid", id1))

	want := []string{"71", "72", "73"}
	assert.Equal(t, want, r1.res)
	assert.Equal(t, want, r2.res)
	assert.Equal(t, 1, r1.n)
	assert.Equal(t, 1, r2.n)
	assert.Equal(t, 0, reg.Pending().Len())
}

func TestListParkingsClearedOnLateComplete(t *testing.T) {
	reg, c := newTestRegistry()
	var r1, r2 result
	reg.Do(Args{Command: "listParkings"}, r1.cb)
	id1 := c.last().ID
	reg.Do(Args{Command: "listParkings"}, r2.cb)
	id2 := c.last().ID

	lot := msg(ami.Event, "event", "Parkinglot", "name", "default", "startexten", "71", "stopexten", "72")
	reg.Dispatch(lot)
	reg.Dispatch(msg(ami.Event, "event", "ParkinglotsComplete", "actionid", id1))
	// второй ответ приходит, когда оба запроса уже завершены
	reg.Dispatch(lot)
	reg.Dispatch(msg(ami.Event, "event", "ParkinglotsComplete", "actionid", id2))

	want := []string{"71", "72"}
	assert.Equal(t, want, r1.res)
	assert.Equal(t, want, r2.res)
	assert.Equal(t, 1, r1.n)
	assert.Equal(t, 1, r2.n)

	lp := reg.plugins["listParkings"].(*listParkings)
	lp.mu.Lock()
	assert.Empty(t, lp.list)
	lp.mu.Unlock()

	// следующий запрос видит только свои строки
	var r3 result
	reg.Do(Args{Command: "listParkings"}, r3.cb)
	reg.Dispatch(msg(ami.Event, "event", "Parkinglot", "name", "vip", "startexten", "80", "stopexten", "80"))
	reg.Dispatch(msg(ami.Event, "event", "ParkinglotsComplete", "actionid", c.last().ID))
	assert.Equal(t, []string{"80"}, r3.res)
	assert.Equal(t, 0, reg.Pending().Len())
}

func TestStaleEventsIgnoredByCollectors(t *testing.T) {
	reg, c := newTestRegistry()
	var r result
	reg.Do(Args{Command: "listChannels"}, r.cb)
	id := c.last().ID
	reg.Dispatch(msg(ami.Event, "event", "CoreShowChannelsComplete", "actionid", id))
	require.Equal(t, 1, r.n)

	// строки и завершение уже закрытого запроса не копятся и не вызывают cb
	reg.Dispatch(msg(ami.Event, "event", "CoreShowChannel", "actionid", id, "channel", "SIP/200-1"))
	reg.Dispatch(msg(ami.Event, "event", "CoreShowChannelsComplete", "actionid", id))
	assert.Equal(t, 1, r.n)
	assert.Equal(t, 0, reg.plugins["listChannels"].(*collector).buffered())
}

func TestExtenStatus(t *testing.T) {
	reg, c := newTestRegistry()
	var r result
	reg.Do(Args{Command: "extenStatus", Exten: "214"}, r.cb)
	reg.Dispatch(msg(ami.Response, "response", "Success", "actionid", c.last().ID, "exten", "214", "status", "8"))
	assert.Equal(t, ExtenStatus{Exten: "214", Status: model.StatusRinging}, r.res)

	reg.Do(Args{Command: "extenStatus", Exten: "999"}, r.cb)
	reg.Dispatch(msg(ami.Response, "response", "Success", "actionid", c.last().ID, "exten", "999", "status", "-1"))
	assert.ErrorIs(t, r.err, ErrNotFound)
}

func TestSipDetails(t *testing.T) {
	reg, c := newTestRegistry()
	var r result
	reg.Do(Args{Command: "sipDetails", Exten: "214"}, r.cb)
	reg.Dispatch(msg(ami.Response, "response", "Success", "actionid", c.last().ID, "objectname", "214",
		"channeltype", "SIP", "addressip", "(null)", "addressport", "0", "callerid", `"Alice Smith" <214>`,
		"status", "OK (5 ms)", "sipuseragent", "Yealink"))
	require.NoError(t, r.err)
	d := r.res.(PeerDetails)
	assert.Equal(t, "Alice Smith", d.Name)
	assert.Equal(t, "", d.IP)
	assert.Equal(t, "", d.Port)
	assert.Equal(t, "sip", d.Tech)
	assert.Equal(t, "ok (5 ms)", d.Status)
}

func TestQueueDetails(t *testing.T) {
	reg, c := newTestRegistry()
	var r result
	reg.Do(Args{Command: "queueDetails", Queue: "401"}, r.cb)
	id := c.last().ID
	reg.Dispatch(msg(ami.Event, "event", "QueueParams", "actionid", id, "queue", "401", "holdtime", "12", "talktime", "80",
		"completed", "10", "abandoned", "2", "servicelevel", "60", "servicelevelperf", "90.5"))
	reg.Dispatch(msg(ami.Event, "event", "QueueMember", "actionid", id, "queue", "401", "location", "Local/214@from-queue/n",
		"name", "Alice", "membership", "dynamic", "paused", "1", "callstaken", "4", "lastcall", "1700000000"))
	reg.Dispatch(msg(ami.Event, "event", "QueueEntry", "actionid", id, "queue", "401", "channel", "SIP/trunk-1",
		"calleridnum", "0612", "calleridname", "Bob", "position", "1", "wait", "30"))
	reg.Dispatch(msg(ami.Event, "event", "QueueStatusComplete", "actionid", id))

	require.NoError(t, r.err)
	d := r.res.(QueueDetails)
	assert.Equal(t, 90.5, d.ServiceLevelPerf)
	require.Len(t, d.Members, 1)
	assert.Equal(t, "214", d.Members[0].Member)
	assert.True(t, d.Members[0].Paused)
	require.Len(t, d.Entries, 1)
	assert.Equal(t, 30, d.Entries[0].Wait)
}

func TestUnknownReplyIgnored(t *testing.T) {
	reg, _ := newTestRegistry()
	assert.NotPanics(t, func() {
		reg.Dispatch(msg(ami.Response, "response", "Success", "actionid", "hangup_1"))
		reg.Dispatch(msg(ami.Event, "event", "CoreShowChannelsComplete", "actionid", "listChannels_1"))
	})
}

type panicky struct{}

func (panicky) Execute(Conn, Args, Callback) error { panic("execute") }
func (panicky) OnMessage(ami.Message)              { panic("message") }

func TestPluginPanicsContained(t *testing.T) {
	p := NewPending(nil, 0, nil)
	reg := NewRegistry(&fakeConn{}, p, map[string]Plugin{"bad": panicky{}}, nil)
	var r result
	assert.NotPanics(t, func() { reg.Do(Args{Command: "bad"}, r.cb) })
	assert.Error(t, r.err)
	assert.NotPanics(t, func() { reg.Dispatch(msg(ami.Event, "event", "Hangup")) })
}
