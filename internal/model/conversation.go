package model

import (
	"errors"
	"time"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var ErrEmptyConversation = errors.New("conversation without channels")

// Conversation связывает канал-источник и (возможно отсутствующий) канал
// назначения с точки зрения владельца.
type Conversation struct {
	ID              string
	Owner           string
	Source          *Channel
	Dest            *Channel
	Recording       bool
	Direction       string
	CounterpartNum  string
	CounterpartName string
	StartTime       time.Time
}

func ConversationID(src, dst *Channel) string {
	var s, d string
	if src != nil {
		s = src.ID
	}
	if dst != nil {
		d = dst.ID
	}
	return s + ">" + d
}

func NewConversation(owner string, src, dst *Channel) (*Conversation, error) {
	if src == nil && dst == nil {
		return nil, ErrEmptyConversation
	}
	c := &Conversation{
		ID:     ConversationID(src, dst),
		Owner:  owner,
		Source: src,
		Dest:   dst,
	}
	switch {
	case src != nil && src.IsExtension(owner):
		c.Direction = DirectionOut
		c.CounterpartNum, c.CounterpartName = src.BridgedNum, src.BridgedName
	case src != nil:
		c.Direction = DirectionIn
		c.CounterpartNum, c.CounterpartName = src.CallerNum, src.CallerName
	case dst.IsExtension(owner):
		c.Direction = DirectionIn
		c.CounterpartNum, c.CounterpartName = dst.BridgedNum, dst.BridgedName
	default:
		c.Direction = DirectionOut
		c.CounterpartNum, c.CounterpartName = dst.CallerNum, dst.CallerName
	}
	if src != nil {
		c.StartTime = src.StartTime()
	}
	if c.StartTime.IsZero() && dst != nil {
		c.StartTime = dst.StartTime()
	}
	return c, nil
}

// Channel возвращает канал участника num, если он есть в разговоре
func (c *Conversation) Channel(num string) *Channel {
	if c.Source != nil && c.Source.IsExtension(num) {
		return c.Source
	}
	if c.Dest != nil && c.Dest.IsExtension(num) {
		return c.Dest
	}
	return nil
}

// UniqueID источника, иначе назначения
func (c *Conversation) UniqueID() string {
	if c.Source != nil && c.Source.UniqueID != "" {
		return c.Source.UniqueID
	}
	if c.Dest != nil {
		return c.Dest.UniqueID
	}
	return ""
}

func (c *Conversation) Duration(now time.Time) time.Duration {
	if c.StartTime.IsZero() {
		return 0
	}
	return now.Sub(c.StartTime).Truncate(time.Second)
}

type ConversationView struct {
	ID              string `json:"id"`
	Owner           string `json:"owner"`
	Source          string `json:"chSource,omitempty"`
	Dest            string `json:"chDest,omitempty"`
	Recording       bool   `json:"recording"`
	Direction       string `json:"direction"`
	CounterpartNum  string `json:"counterpartNum"`
	CounterpartName string `json:"counterpartName"`
	Duration        int    `json:"duration"`
}

func (c *Conversation) View(now time.Time) ConversationView {
	v := ConversationView{
		ID:              c.ID,
		Owner:           c.Owner,
		Recording:       c.Recording,
		Direction:       c.Direction,
		CounterpartNum:  c.CounterpartNum,
		CounterpartName: c.CounterpartName,
		Duration:        int(c.Duration(now).Seconds()),
	}
	if c.Source != nil {
		v.Source = c.Source.ID
	}
	if c.Dest != nil {
		v.Dest = c.Dest.ID
	}
	return v
}
