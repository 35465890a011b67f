package model

import "time"

const (
	ExtenChanged   = "extenChanged"
	QueueChanged   = "queueChanged"
	ParkingChanged = "parkingChanged"
	NewVoicemail   = "newVoicemail"
	TrunkChanged   = "trunkChanged"

	// входящий внешний звонок по UserEvent CallIn
	NewExternalCall = "newExternalCall"
)

// Notification несёт снимок одного изменившегося агрегата
type Notification struct {
	Name    string      `json:"name"`
	Key     string      `json:"key"`
	Payload interface{} `json:"payload"`
	Time    time.Time   `json:"time"`
}

type VoicemailView struct {
	Exten    string `json:"exten"`
	Context  string `json:"context"`
	CountNew int    `json:"countNew"`
	CountOld int    `json:"countOld"`
}
