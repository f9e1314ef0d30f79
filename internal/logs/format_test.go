package logs

import (
	"strings"
	"testing"
)

const sampleRecord = `{"ts":"2024-05-01T10:00:00Z","level":"warn","msg":"job failed","component":"workflow","job_id":"abc","error":"ffmpeg exited 1","frames":450}`

func TestFormatRendersRecord(t *testing.T) {
	line, ok := Format(sampleRecord, Filter{})
	if !ok {
		t.Fatal("expected record kept")
	}
	for _, want := range []string{"WARN ", "[workflow] job failed", `error="ffmpeg exited 1"`, "frames=450", "job_id=abc"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "component=") || strings.Contains(line, "ts=") {
		t.Fatalf("header fields repeated: %q", line)
	}
}

func TestFormatFilters(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		filter Filter
		keep   bool
	}{
		{"level above minimum", sampleRecord, Filter{MinLevel: "info"}, true},
		{"level below minimum", sampleRecord, Filter{MinLevel: "error"}, false},
		{"matching job", sampleRecord, Filter{JobID: "abc"}, true},
		{"other job", sampleRecord, Filter{JobID: "xyz"}, false},
		{"plain text", "panic: boom", Filter{}, true},
		{"plain text with job filter", "panic: boom", Filter{JobID: "abc"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, keep := Format(tt.raw, tt.filter); keep != tt.keep {
				t.Fatalf("keep=%v want %v", keep, tt.keep)
			}
		})
	}
}
