package detect

import (
	"strings"

	"github.com/Yamato-Security/hayabusa-sub001/core"
)

// System channel rule identifiers
const (
	RuleSystemServiceInstalled = "sys_7045_service_installed"
	RuleSystemEventLogCleared  = "sys_104_event_log_cleared"
)

func systemSource() EventSource {
	return NewSource(SourceSystem, []string{ChannelSystem},
		Binding{EventType: "7045", RuleID: RuleSystemServiceInstalled, Handler: serviceInstalled},
		Binding{EventType: "104", RuleID: RuleSystemEventLogCleared, Handler: eventLogCleared},
	)
}

func serviceInstalled(rec *core.Record) (core.Evidence, bool) {
	ev := extract(rec, "ServiceName", "ImagePath", "ServiceType", "StartType", "AccountName")
	if path, ok := ev["ImagePath"]; ok {
		lower := strings.ToLower(path)
		if strings.Contains(lower, "%comspec%") || strings.Contains(lower, `\\127.0.0.1\admin$`) ||
			strings.Contains(lower, "cmd.exe /c") || strings.Contains(lower, "powershell") {
			ev["Indicator"] = "suspicious_image_path"
		}
	}
	return ev, true
}

func eventLogCleared(rec *core.Record) (core.Evidence, bool) {
	ev := extract(rec, "SubjectUserName", "SubjectDomainName", "Channel", "BackupPath")
	// The cleared channel lives in UserData; some parsers flatten it as "Channel".
	if _, ok := ev["Channel"]; !ok {
		if v, ok := rec.Field("ClearedChannel"); ok {
			ev["Channel"] = v
		}
	}
	return ev, true
}
