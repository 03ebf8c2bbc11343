package detect

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Built-in source identifiers
const (
	SourceSysmon     = "sysmon"
	SourceSecurity   = "security"
	SourceSystem     = "system"
	SourcePowerShell = "powershell"
)

// Channels claimed by the built-in sources
const (
	ChannelSysmon            = "Microsoft-Windows-Sysmon/Operational"
	ChannelSecurity          = "Security"
	ChannelSystem            = "System"
	ChannelPowerShell        = "Microsoft-Windows-PowerShell/Operational"
	ChannelWindowsPowerShell = "Windows PowerShell"
)

// SourceOptions tunes the built-in handlers.
type SourceOptions struct {
	// RegexTimeout bounds each content pattern match.
	RegexTimeout time.Duration
	// VerdictCacheSize caps the memoized content checks. Zero uses
	// DefaultVerdictCacheSize.
	VerdictCacheSize int
}

// DefaultVerdictCacheSize is the number of distinct command lines and script
// blocks whose content verdict is remembered.
const DefaultVerdictCacheSize = 4096

// contentMatchers are the suspicious-content patterns shared by the
// process-creation and script-block handlers.
type contentMatchers struct {
	encodedCommand *SafeMatcher
	downloadCradle *SafeMatcher
	lolbinAbuse    *SafeMatcher
	obfuscation    *SafeMatcher

	// verdicts maps text to the check it tripped, "" when clean. The same
	// command lines recur across a log set, so repeat matches are skipped.
	verdicts *lru.Cache[string, string]
}

func newContentMatchers(opts SourceOptions) *contentMatchers {
	size := opts.VerdictCacheSize
	if size <= 0 {
		size = DefaultVerdictCacheSize
	}
	// lru.New only fails for a non-positive size.
	verdicts, _ := lru.New[string, string](size)
	timeout := opts.RegexTimeout
	return &contentMatchers{
		verdicts:       verdicts,
		encodedCommand: MustCompileSafe(`\s-(e|en|enc|enco|encod|encode|encoded|encodedc|encodedcommand)\s+[A-Za-z0-9+/=]{16,}`, timeout),
		downloadCradle: MustCompileSafe(`(Net\.WebClient|DownloadString|DownloadFile|Invoke-WebRequest|\biwr\b|Start-BitsTransfer|Invoke-RestMethod)`, timeout),
		lolbinAbuse:    MustCompileSafe(`(certutil(\.exe)?\s+.*-(urlcache|decode)|mshta(\.exe)?\s+(http|javascript|vbscript)|regsvr32(\.exe)?\s+.*/i:http|rundll32(\.exe)?\s+.*javascript:)`, timeout),
		obfuscation:    MustCompileSafe(`(FromBase64String|-join\s*\(|\[char\]\s*\d+|IEX\s*\(|Invoke-Expression|-bxor)`, timeout),
	}
}

// suspiciousCommand returns the name of the first suspicious-content check the
// text trips, if any.
func (m *contentMatchers) suspiciousCommand(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if check, ok := m.verdicts.Get(text); ok {
		return check, check != ""
	}
	check := m.classify(text)
	m.verdicts.Add(text, check)
	return check, check != ""
}

func (m *contentMatchers) classify(text string) string {
	switch {
	case m.encodedCommand.Match(text):
		return "encoded_command"
	case m.downloadCradle.Match(text):
		return "download_cradle"
	case m.lolbinAbuse.Match(text):
		return "lolbin_abuse"
	}
	return ""
}

// BuiltinSources returns the event sources shipped with the engine.
func BuiltinSources(opts SourceOptions) []EventSource {
	m := newContentMatchers(opts)
	return []EventSource{
		sysmonSource(m),
		securitySource(m),
		systemSource(),
		powerShellSource(m),
	}
}

// DefaultRegistry returns a registry with every built-in source registered.
func DefaultRegistry(opts SourceOptions) (*Registry, error) {
	reg := NewRegistry()
	for _, src := range BuiltinSources(opts) {
		if err := reg.Register(src); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
