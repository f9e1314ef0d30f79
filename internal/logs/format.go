package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"lapse/internal/logging"
)

// Filter selects which records Format keeps.
type Filter struct {
	JobID    string
	MinLevel string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

var headerKeys = map[string]struct{}{
	"ts": {}, "level": {}, "msg": {}, "source": {},
	logging.FieldComponent: {},
}

// Format renders one JSON log record as a single line. It reports false when
// the record does not match filter. Lines that are not JSON pass through
// unless a job filter is set.
func Format(raw string, filter Filter) (string, bool) {
	var record map[string]any
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return raw, filter.JobID == ""
	}

	level := strings.ToLower(stringField(record, "level"))
	if floor, ok := levelRank[strings.ToLower(filter.MinLevel)]; ok {
		if rank, known := levelRank[level]; known && rank < floor {
			return "", false
		}
	}
	if filter.JobID != "" && stringField(record, logging.FieldJobID) != filter.JobID {
		return "", false
	}

	var b strings.Builder
	b.WriteString(formatTimestamp(stringField(record, "ts")))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(level))
	if component := stringField(record, logging.FieldComponent); component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(stringField(record, "msg"))

	keys := make([]string, 0, len(record))
	for key := range record {
		if _, skip := headerKeys[key]; !skip {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, formatValue(record[key]))
	}
	return b.String(), true
}

func stringField(record map[string]any, key string) string {
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}

func formatTimestamp(value string) string {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t=\"") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
