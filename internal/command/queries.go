package command

import (
	"fmt"
	"strings"

	"github.com/nethesis/nethcti-server-sub001/internal/model"
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

func newExtenStatus(p *Pending) Plugin {
	return &reply{
		base: base{"extenStatus", p},
		build: func(args Args) (ami.Action, string, error) {
			if err := needArgs(args, "exten", args.Exten); err != nil {
				return ami.Action{}, "", err
			}
			return ami.NewAction("ExtensionState", "Exten", args.Exten, "Context", "ext-local"),
				prefixed("extenStatus", args.Exten), nil
		},
		parse: func(id string, m ami.Message) (interface{}, error) {
			exten := m.Get("exten")
			if exten == "" {
				exten = ami.IDPart(id, 1)
			}
			if m.Get("status") == "-1" {
				return nil, fmt.Errorf("%w: extension %s", ErrNotFound, exten)
			}
			return ExtenStatus{Exten: exten, Status: model.ExtenStatus(m.Get("status"))}, nil
		},
	}
}

// "Alice Smith" <214> -> Alice Smith
func callerIDName(cid string) string {
	if i := strings.Index(cid, "<"); i >= 0 {
		cid = cid[:i]
	}
	return strings.TrimSpace(strings.ReplaceAll(cid, `"`, ""))
}

func newSipDetails(p *Pending) Plugin {
	return &reply{
		base: base{"sipDetails", p},
		build: func(args Args) (ami.Action, string, error) {
			if err := needArgs(args, "exten", args.Exten); err != nil {
				return ami.Action{}, "", err
			}
			return ami.NewAction("SIPshowpeer", "Peer", args.Exten), prefixed("sipDetails", args.Exten), nil
		},
		parse: func(id string, m ami.Message) (interface{}, error) {
			exten := m.Get("objectname")
			if exten == "" {
				exten = ami.IDPart(id, 1)
			}
			return PeerDetails{
				Exten:     exten,
				Tech:      strings.ToLower(m.Get("channeltype")),
				IP:        nullIP(m.Get("addressip")),
				Port:      nullPort(m.Get("addressport")),
				Name:      callerIDName(m.Get("callerid")),
				Status:    strings.ToLower(m.Get("status")),
				UserAgent: m.Get("sipuseragent"),
			}, nil
		},
	}
}

func newAstVersion(p *Pending) Plugin {
	return &reply{
		base: base{"astVersion", p},
		build: func(Args) (ami.Action, string, error) {
			return ami.NewAction("CoreSettings"), "astVersion", nil
		},
		parse: func(_ string, m ami.Message) (interface{}, error) {
			return m.Get("asteriskversion"), nil
		},
	}
}
