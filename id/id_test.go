package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/docket/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"WorkerID", id.NewWorkerID, "wkr_"},
		{"TimerID", id.NewTimerID, "tmr_"},
		{"CronID", id.NewCronID, "cron_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		s := id.NewTimerID().String()
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate id %q", s)
		}
		seen[s] = struct{}{}
	}
}

func TestParseWithPrefix(t *testing.T) {
	w := id.NewWorkerID()

	parsed, err := id.ParseWorkerID(w.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.String() != w.String() {
		t.Errorf("got %q, want %q", parsed.String(), w.String())
	}

	if _, err := id.ParseWithPrefix(w.String(), id.PrefixTimer); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "not-a-typeid", "wkr_"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestNil(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Fatal("Nil should be nil")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
	if id.Nil.Prefix() != "" {
		t.Errorf("Nil.Prefix() = %q, want empty", id.Nil.Prefix())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type holder struct {
		Worker id.ID `json:"worker"`
	}
	in := holder{Worker: id.NewWorkerID()}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out holder
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Worker.String() != in.Worker.String() {
		t.Errorf("got %q, want %q", out.Worker.String(), in.Worker.String())
	}
}
