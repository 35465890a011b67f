package command

import "github.com/nethesis/nethcti-server-sub001/internal/model"

// результат dbGet-плагинов
type FeatureStatus struct {
	Exten   string
	Enabled bool
	Value   string
}

type ExtenStatus struct {
	Exten  string
	Status string
}

type PeerDetails struct {
	Exten     string
	Tech      string
	IP        string
	Port      string
	Name      string
	Status    string
	UserAgent string
}

type TrunkStatus struct {
	Trunk  string
	Status string
}

type QueueMemberInfo struct {
	Member     string
	Name       string
	Type       string
	Paused     bool
	CallsTaken int
	LastCall   int64
}

type QueueEntryInfo struct {
	Channel  string
	Num      string
	Name     string
	Position int
	Wait     int
}

type QueueDetails struct {
	Queue            string
	HoldTime         int
	TalkTime         int
	Completed        int
	Abandoned        int
	ServiceLevel     int
	ServiceLevelPerf float64
	Members          []QueueMemberInfo
	Entries          []QueueEntryInfo
}

type ParkedChannel struct {
	Parking    string
	Channel    string
	Timeout    int
	CallerNum  string
	CallerName string
	From       string
}

type Voicemail struct {
	Mailbox  string
	Context  string
	FullName string
	New      int
	Old      int
}

// ChannelTable - результат listChannels/extenChannels
type ChannelTable = model.ChannelTable
