package detect

import (
	"strings"

	"github.com/Yamato-Security/hayabusa-sub001/core"
)

// Security auditing rule identifiers
const (
	RuleSecurityProcessCreation   = "sec_4688_process_creation"
	RuleSecuritySuspiciousCommand = "sec_4688_suspicious_command_line"
	RuleSecurityRemoteLogon       = "sec_4624_remote_logon"
	RuleSecurityFailedLogon       = "sec_4625_failed_logon"
	RuleSecurityAccountCreated    = "sec_4720_account_created"
	RuleSecurityAdminGroupAdd     = "sec_4732_admin_group_member_added"
	RuleSecurityAuditLogCleared   = "sec_1102_audit_log_cleared"
)

// process creation fields of 4688, renamed to the Sysmon vocabulary so rule
// messages can share placeholders
var securityProcessMapping = map[string]string{
	"NewProcessName":    "Image",
	"CommandLine":       "CommandLine",
	"ParentProcessName": "ParentImage",
	"SubjectUserName":   "User",
}

// logon types that indicate network or remote interactive access
var remoteLogonTypes = map[string]string{
	"3":  "Network",
	"8":  "NetworkCleartext",
	"10": "RemoteInteractive",
}

const administratorsSID = "S-1-5-32-544"

func securitySource(m *contentMatchers) EventSource {
	return NewSource(SourceSecurity, []string{ChannelSecurity},
		Binding{EventType: "4688", RuleID: RuleSecurityProcessCreation, Handler: securityProcessCreation},
		Binding{EventType: "4688", RuleID: RuleSecuritySuspiciousCommand, Handler: suspiciousProcess(m, securityProcessMapping)},
		Binding{EventType: "4624", RuleID: RuleSecurityRemoteLogon, Handler: remoteLogon},
		Binding{EventType: "4625", RuleID: RuleSecurityFailedLogon, Handler: always("TargetUserName", "TargetDomainName", "IpAddress", "WorkstationName", "LogonType", "Status", "SubStatus")},
		Binding{EventType: "4720", RuleID: RuleSecurityAccountCreated, Handler: always("TargetUserName", "TargetDomainName", "TargetSid", "SubjectUserName")},
		Binding{EventType: "4732", RuleID: RuleSecurityAdminGroupAdd, Handler: adminGroupMemberAdded},
		Binding{EventType: "1102", RuleID: RuleSecurityAuditLogCleared, Handler: always("SubjectUserName", "SubjectDomainName")},
	)
}

func securityProcessCreation(rec *core.Record) (core.Evidence, bool) {
	return rename(rec, make(core.Evidence), securityProcessMapping), true
}

func remoteLogon(rec *core.Record) (core.Evidence, bool) {
	logonType, ok := rec.Field("LogonType")
	if !ok {
		return nil, false
	}
	kind, remote := remoteLogonTypes[strings.TrimSpace(logonType)]
	if !remote {
		return nil, false
	}
	ev := extract(rec, "TargetUserName", "TargetDomainName", "IpAddress", "IpPort", "WorkstationName", "LogonType", "AuthenticationPackageName")
	ev["LogonTypeName"] = kind
	return ev, true
}

func adminGroupMemberAdded(rec *core.Record) (core.Evidence, bool) {
	sid, _ := rec.Field("TargetSid")
	group, _ := rec.Field("TargetUserName")
	if !strings.EqualFold(sid, administratorsSID) && !strings.EqualFold(group, "Administrators") {
		return nil, false
	}
	return extract(rec, "MemberName", "MemberSid", "TargetUserName", "TargetSid", "SubjectUserName"), true
}
