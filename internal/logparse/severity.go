package logparse

import (
	"regexp"
	"strings"
)

// Canonical severity names attached to messages as the "level" field.
const (
	Trace = "TRACE"
	Debug = "DEBUG"
	Info  = "INFO"
	Warn  = "WARN"
	Error = "ERROR"
	Fatal = "FATAL"
)

var severityPattern = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL)\b`)

var severityAliases = map[string]string{
	"TRACE": Trace, "TRAC": Trace, "TRC": Trace,
	"DEBUG": Debug, "DEBU": Debug, "DBG": Debug, "DEB": Debug,
	"INFO": Info, "INFORMATION": Info, "INF": Info, "NOTICE": Info,
	"WARN": Warn, "WARNING": Warn, "WRNG": Warn, "WRN": Warn,
	"ERROR": Error, "ERR": Error, "ERRO": Error,
	"FATAL": Fatal, "FATL": Fatal, "FTL": Fatal, "CRITICAL": Fatal, "CRIT": Fatal,
	"CRT": Fatal, "PANIC": Fatal, "PNC": Fatal, "EMERG": Fatal, "ALERT": Fatal,
}

var severityPrefixes = []struct {
	prefix string
	level  string
}{
	{"INFO", Info},
	{"WARN", Warn},
	{"ERRO", Error},
	{"DEBU", Debug},
	{"TRAC", Trace},
	{"FATA", Fatal},
	{"CRIT", Fatal},
}

// NormalizeSeverity maps the many spellings of a log level onto the canonical
// upper-case names. Unknown values are INFO.
func NormalizeSeverity(severity string) string {
	s := strings.ToUpper(strings.TrimSpace(severity))
	if level, ok := severityAliases[s]; ok {
		return level
	}
	for _, p := range severityPrefixes {
		if strings.HasPrefix(s, p.prefix) {
			return p.level
		}
	}
	return Info
}

// ExtractSeverityFromText finds the first level keyword in free text.
func ExtractSeverityFromText(message string) string {
	match := severityPattern.FindStringSubmatch(message)
	if len(match) < 2 {
		return Info
	}
	return NormalizeSeverity(match[1])
}

// SeverityFromNumber maps numeric levels to canonical names. Values of 10 and
// above are pino/bunyan levels (10..60); 1..7 are syslog priorities (0 = emergency).
func SeverityFromNumber(level int) string {
	if level >= 10 {
		switch {
		case level < 20:
			return Trace
		case level < 30:
			return Debug
		case level < 40:
			return Info
		case level < 50:
			return Warn
		case level < 60:
			return Error
		default:
			return Fatal
		}
	}
	switch {
	case level <= 2:
		return Fatal
	case level == 3:
		return Error
	case level == 4:
		return Warn
	case level <= 6:
		return Info
	default:
		return Debug
	}
}

// SeverityFromOTELNumber maps an OpenTelemetry SeverityNumber (1..24) to a
// canonical name, or "" when the number is unspecified.
func SeverityFromOTELNumber(number int) string {
	switch {
	case number >= 1 && number <= 4:
		return Trace
	case number >= 5 && number <= 8:
		return Debug
	case number >= 9 && number <= 12:
		return Info
	case number >= 13 && number <= 16:
		return Warn
	case number >= 17 && number <= 20:
		return Error
	case number >= 21 && number <= 24:
		return Fatal
	default:
		return ""
	}
}
