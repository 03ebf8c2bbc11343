package detect

import (
	"unicode/utf8"

	"github.com/Yamato-Security/hayabusa-sub001/core"
)

// PowerShell rule identifiers
const (
	RulePowerShellSuspiciousScriptBlock = "ps_4104_suspicious_script_block"
	RulePowerShellModuleLogging         = "ps_4103_module_logging"
)

// maxScriptEvidence caps the script text copied into a finding.
const maxScriptEvidence = 2048

func powerShellSource(m *contentMatchers) EventSource {
	return NewSource(SourcePowerShell, []string{ChannelPowerShell, ChannelWindowsPowerShell},
		Binding{EventType: "4104", RuleID: RulePowerShellSuspiciousScriptBlock, Handler: suspiciousScriptBlock(m)},
		Binding{EventType: "4103", RuleID: RulePowerShellModuleLogging, Handler: always("ContextInfo", "Payload")},
	)
}

func suspiciousScriptBlock(m *contentMatchers) Handler {
	return func(rec *core.Record) (core.Evidence, bool) {
		script, ok := rec.Field("ScriptBlockText")
		if !ok {
			return nil, false
		}
		check, hit := m.suspiciousCommand(script)
		if !hit {
			if m.obfuscation.Match(script) {
				check, hit = "obfuscation", true
			}
		}
		if !hit {
			return nil, false
		}
		ev := extract(rec, "ScriptBlockId", "Path")
		ev["Check"] = check
		ev["ScriptBlockText"] = truncate(script, maxScriptEvidence)
		return ev, true
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
