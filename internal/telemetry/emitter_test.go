package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testEvent(actionID, lifecycle string) Event {
	return Event{
		ActionID:    actionID,
		Status:      "completed",
		Lifecycle:   lifecycle,
		DeviceID:    "lamp-1",
		DeviceClass: "light",
		Intent:      "turn_on",
	}
}

func TestEmit_BufferBoundedFIFO(t *testing.T) {
	e := NewEmitter("", "", "")
	defer e.Close()

	for i := 0; i < bufferCap+25; i++ {
		e.Emit(testEvent(fmt.Sprintf("act-%d", i), LifecycleCompleted))
	}

	recent := e.Recent()
	if len(recent) != bufferCap {
		t.Fatalf("buffer length = %d, want %d", len(recent), bufferCap)
	}
	// Oldest 25 were evicted; buffer starts at act-25.
	if recent[0].ActionID != "act-25" {
		t.Errorf("oldest buffered = %q, want act-25", recent[0].ActionID)
	}
	if recent[len(recent)-1].ActionID != fmt.Sprintf("act-%d", bufferCap+24) {
		t.Errorf("newest buffered = %q", recent[len(recent)-1].ActionID)
	}
}

func TestEmit_StampsTimestamp(t *testing.T) {
	e := NewEmitter("", "", "")
	defer e.Close()

	e.Emit(testEvent("act-1", LifecycleSubmitted))

	recent := e.Recent()
	if len(recent) != 1 {
		t.Fatalf("buffer length = %d", len(recent))
	}
	if recent[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be stamped on emit")
	}
}

func TestEmit_FanOutPaths(t *testing.T) {
	type hit struct {
		path string
	}
	var mu sync.Mutex
	hits := make(map[string][]hit)

	newTarget := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ev Event
			if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
				t.Errorf("%s: decode event: %v", name, err)
			}
			mu.Lock()
			hits[name] = append(hits[name], hit{path: r.URL.Path})
			mu.Unlock()
		}))
	}

	ctxSrv := newTarget("context")
	defer ctxSrv.Close()
	graphSrv := newTarget("context-graph")
	defer graphSrv.Close()
	rendererSrv := newTarget("renderer")
	defer rendererSrv.Close()

	e := NewEmitter(ctxSrv.URL, graphSrv.URL, rendererSrv.URL)
	e.Emit(testEvent("act-1", LifecycleCompleted))
	e.Close() // drains the queue

	mu.Lock()
	defer mu.Unlock()

	if got := hits["context"]; len(got) != 1 || got[0].path != "/telemetry" {
		t.Errorf("context hits = %+v, want one POST /telemetry", got)
	}
	if got := hits["context-graph"]; len(got) != 1 || got[0].path != "/telemetry/actuation" {
		t.Errorf("context-graph hits = %+v, want one POST /telemetry/actuation", got)
	}
	if got := hits["renderer"]; len(got) != 1 || got[0].path != "/telemetry" {
		t.Errorf("renderer hits = %+v, want one POST /telemetry", got)
	}
}

func TestEmit_SinkOrdering(t *testing.T) {
	var mu sync.Mutex
	var lifecycles []string

	e := NewEmitter("", "", "", WithSink(SinkFunc(func(ev Event) {
		mu.Lock()
		lifecycles = append(lifecycles, ev.Lifecycle)
		mu.Unlock()
	})))

	stages := []string{LifecycleSubmitted, LifecyclePermitted, LifecycleExecuting, LifecycleCompleted}
	for _, stage := range stages {
		e.Emit(testEvent("act-1", stage))
	}
	e.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(lifecycles) != len(stages) {
		t.Fatalf("sink received %d events, want %d", len(lifecycles), len(stages))
	}
	for i, stage := range stages {
		if lifecycles[i] != stage {
			t.Errorf("event %d = %q, want %q (pipeline order must be preserved)", i, lifecycles[i], stage)
		}
	}
}

func TestEmit_SinkFailureDoesNotBlockBuffer(t *testing.T) {
	// Target that always refuses; emission must still succeed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEmitter(srv.URL, "", "")
	done := make(chan struct{})
	go func() {
		e.Emit(testEvent("act-1", LifecycleCompleted))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a failing downstream target")
	}
	e.Close()

	if len(e.Recent()) != 1 {
		t.Error("event missing from buffer after delivery failure")
	}
}

func TestRecent_ReturnsCopy(t *testing.T) {
	e := NewEmitter("", "", "")
	defer e.Close()

	e.Emit(testEvent("act-1", LifecycleSubmitted))

	first := e.Recent()
	first[0].ActionID = "mutated"

	if got := e.Recent()[0].ActionID; got != "act-1" {
		t.Errorf("buffer mutated through Recent() copy: %q", got)
	}
}

func TestAddSink_ReceivesLaterEvents(t *testing.T) {
	e := NewEmitter("", "", "")
	defer e.Close()

	var mu sync.Mutex
	var got []string
	e.AddSink(SinkFunc(func(ev Event) {
		mu.Lock()
		got = append(got, ev.ActionID)
		mu.Unlock()
	}))

	e.Emit(testEvent("act-late-1", LifecycleSubmitted))
	e.Emit(testEvent("act-late-2", LifecycleCompleted))
	e.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "act-late-1" || got[1] != "act-late-2" {
		t.Errorf("sink received %v, want [act-late-1 act-late-2]", got)
	}
}
