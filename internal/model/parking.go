package model

import "time"

type ParkedCaller struct {
	Parking  string
	Channel  string
	Num      string
	Name     string
	Timeout  int
	ParkedAt time.Time
	// кто запарковал, пусто если парковка была до старта прокси
	ParkedBy string
}

// Parking - парковочное место, держит не более одного звонка
type Parking struct {
	Number string
	Name   string
	parked *ParkedCaller
}

func NewParking(number string) *Parking {
	return &Parking{Number: number}
}

func (p *Parking) Park(pc *ParkedCaller) {
	pc.Parking = p.Number
	p.parked = pc
}

func (p *Parking) Unpark() {
	p.parked = nil
}

func (p *Parking) Parked() (*ParkedCaller, bool) {
	return p.parked, p.parked != nil
}

type ParkedCallerView struct {
	Channel  string `json:"channel"`
	Num      string `json:"num"`
	Name     string `json:"name"`
	Timeout  int    `json:"timeout"`
	ParkedBy string `json:"parkedBy,omitempty"`
}

type ParkingView struct {
	Number string            `json:"parking"`
	Name   string            `json:"name"`
	Parked *ParkedCallerView `json:"parkedCaller,omitempty"`
}

func (p *Parking) View() ParkingView {
	v := ParkingView{Number: p.Number, Name: p.Name}
	if p.parked != nil {
		v.Parked = &ParkedCallerView{
			Channel:  p.parked.Channel,
			Num:      p.parked.Num,
			Name:     p.parked.Name,
			Timeout:  p.parked.Timeout,
			ParkedBy: p.parked.ParkedBy,
		}
	}
	return v
}
