package model

import (
	"sort"
	"time"
)

const (
	MemberStatic   = "static"
	MemberDynamic  = "dynamic"
	MemberRealtime = "realtime"
)

type QueueMember struct {
	Member       string
	Name         string
	Queue        string
	Type         string
	Paused       bool
	PausedReason string
	CallsTaken   int
	LastCall     time.Time
}

type QueueWaitingCaller struct {
	Channel  string
	Queue    string
	Num      string
	Name     string
	Position int
	JoinTime time.Time
}

func (w *QueueWaitingCaller) Wait(now time.Time) time.Duration {
	return now.Sub(w.JoinTime).Truncate(time.Second)
}

type Queue struct {
	Number           string
	Name             string
	HoldTime         int
	TalkTime         int
	Completed        int
	Abandoned        int
	ServiceLevel     int
	ServiceLevelPerf float64

	members map[string]*QueueMember
	waiting map[string]*QueueWaitingCaller
}

func NewQueue(number string) *Queue {
	return &Queue{
		Number:  number,
		members: make(map[string]*QueueMember),
		waiting: make(map[string]*QueueWaitingCaller),
	}
}

func (q *Queue) AddMember(m *QueueMember) {
	m.Queue = q.Number
	q.members[m.Member] = m
}

func (q *Queue) RemoveMember(member string) bool {
	_, ok := q.members[member]
	delete(q.members, member)
	return ok
}

func (q *Queue) Member(member string) (*QueueMember, bool) {
	m, ok := q.members[member]
	return m, ok
}

func (q *Queue) Members() []*QueueMember {
	out := make([]*QueueMember, 0, len(q.members))
	for _, m := range q.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Member < out[j].Member })
	return out
}

// ClearMembers перед заполнением из QueueStatus
func (q *Queue) ClearMembers() {
	q.members = make(map[string]*QueueMember)
}

func (q *Queue) AddWaitingCaller(w *QueueWaitingCaller) {
	w.Queue = q.Number
	q.waiting[w.Channel] = w
}

func (q *Queue) RemoveWaitingCaller(channel string) bool {
	_, ok := q.waiting[channel]
	delete(q.waiting, channel)
	return ok
}

func (q *Queue) ClearWaitingCallers() {
	q.waiting = make(map[string]*QueueWaitingCaller)
}

// WaitingCallers по позиции в очереди
func (q *Queue) WaitingCallers() []*QueueWaitingCaller {
	out := make([]*QueueWaitingCaller, 0, len(q.waiting))
	for _, w := range q.waiting {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

type QueueMemberView struct {
	Member       string `json:"member"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Paused       bool   `json:"paused"`
	PausedReason string `json:"pausedReason,omitempty"`
	CallsTaken   int    `json:"callsTakenCount"`
	LastCall     int64  `json:"lastCallTimestamp"`
}

type QueueWaitingCallerView struct {
	Channel  string `json:"channel"`
	Num      string `json:"num"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Wait     int    `json:"waiting"`
}

type QueueView struct {
	Number           string                            `json:"queue"`
	Name             string                            `json:"name"`
	HoldTime         int                               `json:"avgHoldTime"`
	TalkTime         int                               `json:"avgTalkTime"`
	Completed        int                               `json:"completedCallsCount"`
	Abandoned        int                               `json:"abandonedCallsCount"`
	ServiceLevel     int                               `json:"serviceLevelTimePeriod"`
	ServiceLevelPerf float64                           `json:"serviceLevelPercentage"`
	Members          map[string]QueueMemberView        `json:"members"`
	WaitingCallers   map[string]QueueWaitingCallerView `json:"waitingCallers"`
}

func (q *Queue) View(now time.Time) QueueView {
	v := QueueView{
		Number:           q.Number,
		Name:             q.Name,
		HoldTime:         q.HoldTime,
		TalkTime:         q.TalkTime,
		Completed:        q.Completed,
		Abandoned:        q.Abandoned,
		ServiceLevel:     q.ServiceLevel,
		ServiceLevelPerf: q.ServiceLevelPerf,
		Members:          make(map[string]QueueMemberView, len(q.members)),
		WaitingCallers:   make(map[string]QueueWaitingCallerView, len(q.waiting)),
	}
	for k, m := range q.members {
		mv := QueueMemberView{
			Member:       m.Member,
			Name:         m.Name,
			Type:         m.Type,
			Paused:       m.Paused,
			PausedReason: m.PausedReason,
			CallsTaken:   m.CallsTaken,
		}
		if !m.LastCall.IsZero() {
			mv.LastCall = m.LastCall.Unix()
		}
		v.Members[k] = mv
	}
	for k, w := range q.waiting {
		v.WaitingCallers[k] = QueueWaitingCallerView{
			Channel:  w.Channel,
			Num:      w.Num,
			Name:     w.Name,
			Position: w.Position,
			Wait:     int(w.Wait(now).Seconds()),
		}
	}
	return v
}
