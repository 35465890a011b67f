package command

import (
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
)

// команды управления звонками: один запрос, ответ Success/Error

func endpointChannel(args Args) string {
	tech := args.Tech
	if tech == "" {
		tech = "SIP"
	}
	return tech + "/" + args.Exten
}

func hangup(args Args) (ami.Action, error) {
	if err := needArgs(args, "channel", args.Channel); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("Hangup", "Channel", args.Channel), nil
}

func (o Options) redirect(args Args) (ami.Action, error) {
	if err := needArgs(args, "channel", args.Channel, "to", args.To); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("Redirect", "Channel", args.Channel, "Exten", args.To, "Context", o.Context, "Priority", "1"), nil
}

func (o Options) attendedTransfer(args Args) (ami.Action, error) {
	if err := needArgs(args, "channel", args.Channel, "to", args.To); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("Atxfer", "Channel", args.Channel, "Exten", args.To, "Context", o.Context, "Priority", "1"), nil
}

func (o Options) transferToVoicemail(args Args) (ami.Action, error) {
	if err := needArgs(args, "channel", args.Channel, "to", args.To); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("Redirect", "Channel", args.Channel, "Exten", "vmu"+args.To, "Context", o.VoicemailContext, "Priority", "1"), nil
}

func (o Options) park(args Args) (ami.Action, error) {
	if err := needArgs(args, "channel", args.Channel, "channel2", args.Channel2); err != nil {
		return ami.Action{}, err
	}
	a := ami.NewAction("Park", "Channel", args.Channel, "Channel2", args.Channel2)
	if o.ParkTimeout != "" {
		a = a.With("Timeout", o.ParkTimeout)
	}
	return a, nil
}

func (o Options) call(args Args) (ami.Action, error) {
	if err := needArgs(args, "exten", args.Exten, "to", args.To); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("Originate",
		"Channel", endpointChannel(args),
		"Exten", args.To,
		"Context", o.Context,
		"Priority", "1",
		"CallerID", args.Exten,
		"Async", "true"), nil
}

func record(args Args) (ami.Action, error) {
	if err := needArgs(args, "channel", args.Channel, "filepath", args.Filepath); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("Monitor", "Channel", args.Channel, "File", args.Filepath, "Format", "wav", "Mix", "1"), nil
}

func stopRecord(args Args) (ami.Action, error) {
	if err := needArgs(args, "channel", args.Channel); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("StopMonitor", "Channel", args.Channel), nil
}

// spy: АТС звонит шпиону (Exten/Tech) и подключает ChanSpy к args.Channel
func spy(options string) func(args Args) (ami.Action, error) {
	return func(args Args) (ami.Action, error) {
		if err := needArgs(args, "channel", args.Channel, "exten", args.Exten); err != nil {
			return ami.Action{}, err
		}
		return ami.NewAction("Originate",
			"Channel", endpointChannel(args),
			"Application", "ChanSpy",
			"Data", args.Channel+","+options,
			"CallerID", args.Exten,
			"Async", "true"), nil
	}
}

func playDTMF(args Args) (ami.Action, error) {
	if err := needArgs(args, "channel", args.Channel, "digit", args.Digit); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("PlayDTMF", "Channel", args.Channel, "Digit", args.Digit), nil
}

func callAndSendDTMF(args Args) (ami.Action, error) {
	if err := needArgs(args, "exten", args.Exten, "sequence", args.Sequence); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("Originate",
		"Channel", endpointChannel(args),
		"Application", "SendDTMF",
		"Data", args.Sequence,
		"CallerID", args.Exten,
		"Async", "true"), nil
}

// вход во все динамические очереди через служебный код диалплана
func (o Options) logonDynQueues(args Args) (ami.Action, error) {
	if err := needArgs(args, "exten", args.Exten); err != nil {
		return ami.Action{}, err
	}
	return ami.NewAction("Originate",
		"Channel", endpointChannel(args),
		"Exten", o.QueueLogonCode,
		"Context", o.Context,
		"Priority", "1",
		"CallerID", args.Exten,
		"Async", "true"), nil
}
