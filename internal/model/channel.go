package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ключи строки таблицы каналов
const (
	KeyChannel        = "channel"
	KeyType           = "type"
	KeyStatus         = "status"
	KeyDuration       = "duration"
	KeyUniqueID       = "uniqueid"
	KeyCallerNum      = "callerNum"
	KeyCallerName     = "callerName"
	KeyBridgedNum     = "bridgedNum"
	KeyBridgedName    = "bridgedName"
	KeyBridgedChannel = "bridgedChannel"
)

const (
	TypeSource      = "source"
	TypeDestination = "destination"
	TypeUnknown     = "unknown"
)

var requiredChannelKeys = []string{
	KeyChannel, KeyType, KeyStatus, KeyDuration,
	KeyCallerNum, KeyCallerName, KeyBridgedNum, KeyBridgedName,
}

var ErrIncompleteChannel = errors.New("incomplete channel snapshot")

// строка таблицы каналов как её отдаёт listChannels
type ChannelRow map[string]string

// ChannelTable: идентификатор канала -> строка
type ChannelTable map[string]ChannelRow

// снимок одного плеча звонка, не меняется после создания
type Channel struct {
	ID             string
	Type           string
	Status         string
	Duration       string
	UniqueID       string
	CallerNum      string
	CallerName     string
	BridgedNum     string
	BridgedName    string
	BridgedChannel string
}

func NewChannel(row ChannelRow) (*Channel, error) {
	for _, k := range requiredChannelKeys {
		if _, ok := row[k]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrIncompleteChannel, k)
		}
	}
	if row[KeyChannel] == "" {
		return nil, fmt.Errorf("%w: empty channel id", ErrIncompleteChannel)
	}
	return &Channel{
		ID:             row[KeyChannel],
		Type:           row[KeyType],
		Status:         row[KeyStatus],
		Duration:       row[KeyDuration],
		UniqueID:       row[KeyUniqueID],
		CallerNum:      row[KeyCallerNum],
		CallerName:     row[KeyCallerName],
		BridgedNum:     row[KeyBridgedNum],
		BridgedName:    row[KeyBridgedName],
		BridgedChannel: row[KeyBridgedChannel],
	}, nil
}

func (c *Channel) IsSource() bool      { return c.Type == TypeSource }
func (c *Channel) IsDestination() bool { return c.Type == TypeDestination }

// IsExtension: канал принадлежит номеру num
func (c *Channel) IsExtension(num string) bool {
	return c.CallerNum == num
}

// технология канала в нижнем регистре, например sip
func (c *Channel) Tech() string {
	return ChannelTech(c.ID)
}

// время создания канала из uniqueid вида 1700000000.42
func (c *Channel) StartTime() time.Time {
	return UniqueIDTime(c.UniqueID)
}

func ChannelTech(id string) string {
	if i := strings.Index(id, "/"); i > 0 {
		return strings.ToLower(id[:i])
	}
	return ""
}

// ChannelEndpoint выделяет имя из SIP/214-0000001a -> 214
func ChannelEndpoint(id string) string {
	i := strings.Index(id, "/")
	if i < 0 {
		return ""
	}
	rest := id[i+1:]
	if j := strings.LastIndex(rest, "-"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func UniqueIDTime(uid string) time.Time {
	sec := uid
	if i := strings.Index(uid, "."); i >= 0 {
		sec = uid[:i]
	}
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// ChannelType определяет роль канала: при наличии моста более поздний канал
// считается назначением, иначе решает статус.
func ChannelType(channel, bridged, status string) string {
	if bridged != "" {
		if CreatedAfter(channel, bridged) {
			return TypeDestination
		}
		return TypeSource
	}
	switch status {
	case "ringing":
		return TypeDestination
	case "ring":
		return TypeSource
	}
	return TypeUnknown
}

// CreatedAfter сравнивает порядок создания по шестнадцатеричному суффиксу
// после последнего дефиса. При равных или неразборчивых суффиксах
// сравниваются полные идентификаторы, одинаковые каналы не считаются более
// поздними.
func CreatedAfter(a, b string) bool {
	sa, sb := channelSuffix(a), channelSuffix(b)
	na, errA := strconv.ParseUint(sa, 16, 64)
	nb, errB := strconv.ParseUint(sb, 16, 64)
	if errA == nil && errB == nil && na != nb {
		return na > nb
	}
	if (errA != nil || errB != nil) && sa != sb {
		return sa > sb
	}
	return a > b
}

func channelSuffix(id string) string {
	if i := strings.LastIndex(id, "-"); i >= 0 {
		return id[i+1:]
	}
	return ""
}

// состояние канала по коду channelstate
func ChannelState(code string) string {
	switch code {
	case "0":
		return "down"
	case "1":
		return "reserved"
	case "2":
		return "offhook"
	case "3":
		return "dialing"
	case "4":
		return "ring"
	case "5":
		return "ringing"
	case "6":
		return "up"
	case "7":
		return "busy"
	case "8":
		return "dialing_offhook"
	case "9":
		return "prering"
	}
	return "unknown"
}
