package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func noProgress(context.Context, ...float64) error { return nil }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got emailPayload
	def := job.NewDefinition("send-email", func(_ context.Context, p emailPayload, _ job.Progress) error {
		got = p
		return nil
	})

	job.RegisterDefinition(r, def)

	h, ok := r.Get("send-email")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(emailPayload{To: "alice@example.com", Subject: "Hello"})
	if err := h(context.Background(), payload, noProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", got.To, "alice@example.com")
	}
	if got.Subject != "Hello" {
		t.Errorf("Subject = %q, want %q", got.Subject, "Hello")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no handler for unregistered job")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := job.NewRegistry()

	noop := func(context.Context, struct{}, job.Progress) error { return nil }
	job.RegisterDefinition(r, job.NewDefinition("job-a", noop))
	job.RegisterDefinition(r, job.NewDefinition("job-b", noop))
	job.RegisterDefinition(r, job.NewDefinition("job-c", noop))

	names := r.Names()
	sort.Strings(names)
	if len(names) != 3 {
		t.Fatalf("expected 3 names, got %d", len(names))
	}
	for i, want := range []string{"job-a", "job-b", "job-c"} {
		if names[i] != want {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("typed-job", func(context.Context, emailPayload, job.Progress) error {
		t.Fatal("handler should not be called with invalid JSON")
		return nil
	}))

	h, _ := r.Get("typed-job")
	if err := h(context.Background(), []byte(`{invalid json`), noProgress); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition("overwrite", func(context.Context, struct{}, job.Progress) error {
		return errors.New("old")
	}))
	job.RegisterDefinition(r, job.NewDefinition("overwrite", func(context.Context, struct{}, job.Progress) error {
		return errors.New("new")
	}))

	h, _ := r.Get("overwrite")
	err := h(context.Background(), nil, noProgress)
	if err == nil || err.Error() != "new" {
		t.Fatalf("expected 'new' error, got %v", err)
	}
}

func TestRegistry_Processor(t *testing.T) {
	r := job.NewRegistry()

	var reported []float64
	job.RegisterDefinition(r, job.NewDefinition("resize", func(ctx context.Context, p struct{ Width int }, progress job.Progress) error {
		if p.Width != 640 {
			t.Errorf("Width = %d, want 640", p.Width)
		}
		return progress(ctx, 50)
	}))

	progress := func(_ context.Context, v ...float64) error {
		reported = append(reported, v...)
		return nil
	}

	proc := r.Processor()
	j := &job.Job{ID: 1, Name: "resize", Data: []byte(`{"Width":640}`)}
	if err := proc(context.Background(), j, progress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reported) != 1 || reported[0] != 50 {
		t.Errorf("progress = %v, want [50]", reported)
	}

	err := proc(context.Background(), &job.Job{ID: 2, Name: "unknown"}, progress)
	if !errors.Is(err, docket.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}
