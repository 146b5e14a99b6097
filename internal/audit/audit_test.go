package audit

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() }) //nolint:errcheck // test cleanup
	return l
}

func TestLedger_RecordAndRecent(t *testing.T) {
	l := openTestLedger(t)

	for i := 0; i < 3; i++ {
		if err := l.Record(Entry{
			RequestID:  "req-" + string(rune('a'+i)),
			Timestamp:  time.Now(),
			EngineName: "context-aware-redactor",
			Count:      i + 1,
			Types:      []string{"PATIENT_NAME"},
			DurationMs: 1.5,
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := l.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].RequestID != "req-c" {
		t.Errorf("expected newest entry first, got %q", recent[0].RequestID)
	}
}

func TestLedger_Summarize(t *testing.T) {
	l := openTestLedger(t)

	if err := l.Record(Entry{RequestID: "ok", EngineName: "context-aware-redactor", Count: 3}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(Entry{RequestID: "bad", EngineName: "context-aware-redactor", Failed: true, ErrorKind: "InvalidInput"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	stats, err := l.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if stats.TotalEntries != 2 {
		t.Errorf("TotalEntries = %d, want 2", stats.TotalEntries)
	}
	if stats.TotalSpans != 3 {
		t.Errorf("TotalSpans = %d, want 3", stats.TotalSpans)
	}
	if stats.TotalFailed != 1 {
		t.Errorf("TotalFailed = %d, want 1", stats.TotalFailed)
	}
	if stats.ByEngine["context-aware-redactor"] != 2 {
		t.Errorf("ByEngine count = %d, want 2", stats.ByEngine["context-aware-redactor"])
	}
}

func TestLedger_NeverStoresText(t *testing.T) {
	// Guards against a future field addition silently letting original or
	// redacted text (or raw spans) into the ledger.
	forbidden := []string{"Text", "Original", "Redacted", "Spans"}
	typ := reflect.TypeOf(Entry{})
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Name
		for _, f := range forbidden {
			if name == f {
				t.Fatalf("Entry must never carry a %q field", f)
			}
		}
	}
}
