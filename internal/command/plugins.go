package command

import "github.com/nethesis/nethcti-server-sub001/internal/server/ami"

// Plugins собирает полный набор плагинов для одной сессии
func Plugins(p *Pending, opts Options) map[string]Plugin {
	o := opts.withDefaults()
	m := map[string]Plugin{
		"listSipPeers":       newListSipPeers(p),
		"listIaxPeers":       newListIaxPeers(p),
		"listQueues":         newListQueues(p),
		"listParkings":       newListParkings(p),
		"listChannels":       newListChannels(p),
		"extenChannels":      newExtenChannels(p),
		"queueDetails":       newQueueDetails(p),
		"listParkedChannels": newListParkedChannels(p),
		"listVoicemail":      newListVoicemail(p),
		"trunkStatus":        newTrunkStatus(p),
		"iaxDetails":         newIaxDetails(p),
		"sipDetails":         newSipDetails(p),
		"extenStatus":        newExtenStatus(p),
		"astVersion":         newAstVersion(p),

		"cfGet":  newDBGet("cfGet", familyCF, p),
		"cfbGet": newDBGet("cfbGet", familyCFB, p),
		"cwGet":  newDBGet("cwGet", familyCW, p),
		"dndGet": newDBGet("dndGet", familyDND, p),
		"cfSet":  newDBSet("cfSet", familyCF, p, valueTo),
		"cfbSet": newDBSet("cfbSet", familyCFB, p, valueTo),
		"cwSet":  newDBSet("cwSet", familyCW, p, valueEnabled),
		"dndSet": newDBSet("dndSet", familyDND, p, valueYes),
	}

	simple := map[string]func(Args) (ami.Action, error){
		"hangup":              hangup,
		"redirectChannel":     o.redirect,
		"attendedTransfer":    o.attendedTransfer,
		"transferToVoicemail": o.transferToVoicemail,
		"parkChannel":         o.park,
		"call":                o.call,
		"recordCall":          record,
		"stopRecordCall":      stopRecord,
		"spyListen":           spy("q"),
		"spySpeak":            spy("qw"),
		"playDTMF":            playDTMF,
		"callAndSendDTMF":     callAndSendDTMF,
		"logonDynQueues":      o.logonDynQueues,
	}
	for name, build := range simple {
		m[name] = newSimple(name, p, build)
	}
	return m
}
