package manager

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseBackendKind(t *testing.T) {
	cases := []struct {
		in   string
		want BackendKind
		ok   bool
	}{
		{"llama.cpp-http", KindLlamaHTTP, true},
		{"  LLAMA.CPP-HTTP ", KindLlamaHTTP, true},
		{"llama.cpp-spawn", KindLlamaSpawn, true},
		{"llama-inprocess", KindLlamaInProcess, true},
		{"Synthetic", KindSynthetic, true},
		{"", "", false},
		{"unknown-experimental", "", false},
	}
	for _, c := range cases {
		got, ok := ParseBackendKind(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("ParseBackendKind(%q) = %q,%v want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestDefaultFactoriesCoverEveryKind(t *testing.T) {
	f := defaultFactories()
	for _, k := range Kinds() {
		if f[k] == nil {
			t.Fatalf("no factory for %s", k)
		}
	}
}

func TestNATSSubjectAndPayload(t *testing.T) {
	if got := subjectFor(normalizePrefix(""), EventRunnerReady); got != "modelrunner.events.runner_ready" {
		t.Fatalf("subject = %q", got)
	}
	if got := normalizePrefix(" lab.models. "); got != "lab.models" {
		t.Fatalf("prefix = %q", got)
	}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := encodeEvent(Event{Name: EventRunnerReady, ModelID: "m", Fields: map[string]any{"backend": "synthetic"}}, at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["event"] != EventRunnerReady || got["model_id"] != "m" || got["time"] != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected payload: %s", b)
	}
}

func TestMultiPublisherFansOut(t *testing.T) {
	a, b := NewMemoryPublisher(), NewMemoryPublisher()
	MultiPublisher{a, nil, b}.Publish(Event{Name: "x"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("expected both publishers to receive the event")
	}
}
