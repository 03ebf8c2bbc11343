package detect

import (
	"strings"

	"github.com/Yamato-Security/hayabusa-sub001/core"
)

// Sysmon rule identifiers
const (
	RuleSysmonProcessCreation    = "sysmon_1_process_creation"
	RuleSysmonSuspiciousCommand  = "sysmon_1_suspicious_command_line"
	RuleSysmonNetworkConnection  = "sysmon_3_network_connection"
	RuleSysmonUnsignedImageLoad  = "sysmon_7_unsigned_image_load"
	RuleSysmonStartupFileCreated = "sysmon_11_startup_folder_file"
	RuleSysmonRunKeyModified     = "sysmon_13_run_key_modified"
	RuleSysmonDNSQuery           = "sysmon_22_dns_query"
)

var processFields = []string{"Image", "CommandLine", "ParentImage", "ParentCommandLine", "User", "IntegrityLevel", "Hashes"}

func sysmonSource(m *contentMatchers) EventSource {
	return NewSource(SourceSysmon, []string{ChannelSysmon},
		Binding{EventType: "1", RuleID: RuleSysmonProcessCreation, Handler: always(processFields...)},
		Binding{EventType: "1", RuleID: RuleSysmonSuspiciousCommand, Handler: suspiciousProcess(m, nil)},
		Binding{EventType: "3", RuleID: RuleSysmonNetworkConnection, Handler: always("Image", "User", "Protocol", "SourceIp", "DestinationIp", "DestinationHostname", "DestinationPort")},
		Binding{EventType: "7", RuleID: RuleSysmonUnsignedImageLoad, Handler: unsignedImageLoad},
		Binding{EventType: "11", RuleID: RuleSysmonStartupFileCreated, Handler: startupFolderFile},
		Binding{EventType: "13", RuleID: RuleSysmonRunKeyModified, Handler: runKeyModified},
		Binding{EventType: "22", RuleID: RuleSysmonDNSQuery, Handler: always("Image", "QueryName", "QueryStatus", "QueryResults")},
	)
}

// suspiciousProcess flags process creations whose command line trips one of
// the content checks. mapping renames source-specific fields to the Sysmon
// names before extraction.
func suspiciousProcess(m *contentMatchers, mapping map[string]string) Handler {
	return func(rec *core.Record) (core.Evidence, bool) {
		var ev core.Evidence
		if mapping != nil {
			ev = rename(rec, make(core.Evidence), mapping)
		} else {
			ev = extract(rec, processFields...)
		}
		check, ok := m.suspiciousCommand(ev["CommandLine"])
		if !ok {
			return nil, false
		}
		ev["Check"] = check
		return ev, true
	}
}

func unsignedImageLoad(rec *core.Record) (core.Evidence, bool) {
	signed, ok := rec.Field("Signed")
	if !ok || !strings.EqualFold(signed, "false") {
		return nil, false
	}
	return extract(rec, "Image", "ImageLoaded", "Signature", "SignatureStatus", "Hashes", "User"), true
}

func startupFolderFile(rec *core.Record) (core.Evidence, bool) {
	target, ok := rec.Field("TargetFilename")
	if !ok || !strings.Contains(strings.ToLower(target), `\start menu\programs\startup\`) {
		return nil, false
	}
	return extract(rec, "Image", "TargetFilename", "User"), true
}

var runKeys = []string{
	`\software\microsoft\windows\currentversion\run`,
	`\software\wow6432node\microsoft\windows\currentversion\run`,
	`\software\microsoft\windows\currentversion\policies\explorer\run`,
}

func runKeyModified(rec *core.Record) (core.Evidence, bool) {
	target, ok := rec.Field("TargetObject")
	if !ok {
		return nil, false
	}
	lower := strings.ToLower(target)
	for _, key := range runKeys {
		if strings.Contains(lower, key) {
			return extract(rec, "EventType", "Image", "TargetObject", "Details", "User"), true
		}
	}
	return nil, false
}
