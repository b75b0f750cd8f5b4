package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
	"fatal":   "FATAL",
}

// Known values for enumerated attributes. Unknown "status" values are kept
// verbatim; unknown "outcome" values are dropped.
var (
	knownStatus = map[string]struct{}{
		"ok": {}, "fail": {}, "skip": {}, "retry": {}, "duplicate": {}, "rate_limited": {}, "cancelled": {},
	}
	knownOutcome = map[string]struct{}{
		"ok": {}, "fail": {}, "noop": {}, "cancelled": {}, "rate_limited": {},
	}
)

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnum(value string, known map[string]struct{}) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", false
	}
	_, ok := known[value]
	return value, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"channel",
	"bot_id",
	"phone",
	"handler",
	"kind",
	"rule",
	"outcome",
	"duration_ms",
	"messages",
	"topic",
	"subtopic",
	"level_pick",
	"set",
	"question",
	"score",
	"badge",
	"method",
	"path",
	"http_code",
	"mode",
	"listen",
	"driver",
	"host",
	"port",
	"db",
	"err",
	"err_kind",
	"attempts",
	"backoff_ms",
}
