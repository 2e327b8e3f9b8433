package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// patternFormatter renders log entries against a small template
// language (%time, %level, %field, %msg), the same substitution-marker
// idiom the corpus's formatter uses for its own log lines.
type patternFormatter struct {
	pattern string
}

func (f *patternFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	out := f.pattern
	out = strings.Replace(out, "%time", entry.Time.Format("2006-01-02T15:04:05.000Z07:00"), 1)
	out = strings.Replace(out, "%level", strings.ToUpper(entry.Level.String()), 1)
	out = strings.Replace(out, "%field", formatFields(entry), 1)
	out = strings.Replace(out, "%msg", entry.Message, 1)
	return []byte(out + "\n"), nil
}

func formatFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, entry.Data[k]))
	}
	return strings.Join(parts, " ")
}
