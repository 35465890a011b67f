package command

import (
	"strings"

	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

// функции телефона хранятся в AstDB: запись есть - включено
const (
	familyCF  = "CF"
	familyCFB = "CFB"
	familyCW  = "CW"
	familyDND = "DND"
)

// dbGet: DBGet Family/Key, значение приходит событием DBGetResponse,
// Response: Error означает отсутствие записи
type dbGet struct {
	base
	family string
}

func newDBGet(name, family string, p *Pending) *dbGet {
	return &dbGet{base: base{name, p}, family: family}
}

func (d *dbGet) Execute(conn Conn, args Args, cb Callback) error {
	if err := needArgs(args, "exten", args.Exten); err != nil {
		return err
	}
	a := ami.NewAction("DBGet", "Family", d.family, "Key", args.Exten)
	d.send(conn, prefixed(d.name, args.Exten), a, cb)
	return nil
}

func (d *dbGet) OnMessage(msg ami.Message) {
	if !d.mine(msg) {
		return
	}
	id := msg.ActionID()
	exten := ami.IDPart(id, 1)
	switch {
	case msg.IsError():
		d.pending.Resolve(id, FeatureStatus{Exten: exten}, nil)
	case msg.Event() == "dbgetresponse" && strings.EqualFold(msg.Get("family"), d.family):
		val := msg.Get("val")
		d.pending.Resolve(id, FeatureStatus{Exten: exten, Enabled: val != "", Value: val}, nil)
	}
}

// dbSet: DBPut при включении, DBDel при выключении
type dbSet struct {
	simple
	family string
	value  func(args Args) string
}

func newDBSet(name, family string, p *Pending, value func(args Args) string) *dbSet {
	d := &dbSet{family: family, value: value}
	d.simple = simple{base: base{name, p}, build: d.build}
	return d
}

func (d *dbSet) build(args Args) (ami.Action, error) {
	if err := needArgs(args, "exten", args.Exten); err != nil {
		return ami.Action{}, err
	}
	if !args.Activate {
		return ami.NewAction("DBDel", "Family", d.family, "Key", args.Exten), nil
	}
	val := d.value(args)
	if err := needArgs(args, "value", val); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("DBPut", "Family", d.family, "Key", args.Exten, "Val", val), nil
}

func (d *dbSet) OnMessage(msg ami.Message) {
	// удаление отсутствующей записи - уже выключено
	if msg.IsError() && d.mine(msg) && strings.Contains(strings.ToLower(msg.Get("message")), "not found") {
		d.pending.Resolve(msg.ActionID(), msg.Get("message"), nil)
		return
	}
	d.simple.OnMessage(msg)
}

func valueTo(args Args) string { return args.To }
func valueYes(Args) string     { return "YES" }
func valueEnabled(Args) string { return "ENABLED" }
