package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/domain"
	"github.com/harshit-ig/startup-genie/internal/repository"
)

// fakeClock avanza el tiempo virtual en cada timer y lo entrega ya disparado,
// asi Run corre de forma sincronica.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.timers++
	ch := make(chan time.Time, 1)
	ch <- c.now
	return &firedTimer{ch: ch}
}

type firedTimer struct {
	ch chan time.Time
}

func (t *firedTimer) C() <-chan time.Time { return t.ch }
func (t *firedTimer) Stop() bool          { return false }

type scriptedPrompts struct {
	mu    sync.Mutex
	reads int
	fn    func(read int) (domain.Prompt, error)
}

func (s *scriptedPrompts) GetByID(_ context.Context, _ string) (domain.Prompt, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	return s.fn(n)
}

func (s *scriptedPrompts) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type scriptedResponses struct {
	mu    sync.Mutex
	reads int
	fn    func(read int) (domain.Response, error)
}

func (s *scriptedResponses) GetByID(_ context.Context, _ string) (domain.Response, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	return s.fn(n)
}

func (s *scriptedResponses) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type recordingSink struct {
	events []Event
	failOn int // falla al recibir el evento numero failOn (1-based); 0 nunca
	onSend func(n int)
}

func (s *recordingSink) Send(ev Event) error {
	n := len(s.events) + 1
	if s.failOn != 0 && n == s.failOn {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, ev)
	if s.onSend != nil {
		s.onSend(n)
	}
	return nil
}

func (s *recordingSink) last() Event {
	return s.events[len(s.events)-1]
}

var (
	testPromptID   = "65a1b2c3d4e5f60718293a4b"
	testResponseID = "65a1b2c3d4e5f60718293a4c"
)

func linkedPrompt(int) (domain.Prompt, error) {
	return domain.Prompt{ID: testPromptID, UserID: "u1", ResponseID: testResponseID}, nil
}

func responseWith(tokens []string, complete bool) domain.Response {
	return domain.Response{ID: testResponseID, UserID: "u1", Tokens: tokens, Complete: complete}
}

func newTestRelay(p PromptReader, r ResponseReader, clock Clock) *Relay {
	return New(p, r, DefaultConfig(), zap.NewNop(), WithClock(clock))
}

func streamedText(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Error || ev.Complete {
			continue
		}
		b.WriteString(ev.Text())
	}
	return b.String()
}

func TestRelayStreamsTokensInOrder(t *testing.T) {
	schedule := [][]string{
		{"a"},
		{"a", "b"},
		{"a", "b"},
		{"a", "b", "c", "d"},
	}
	prompts := &scriptedPrompts{fn: linkedPrompt}
	responses := &scriptedResponses{fn: func(read int) (domain.Response, error) {
		if read > len(schedule) {
			read = len(schedule)
		}
		return responseWith(schedule[read-1], read == len(schedule)), nil
	}}
	sink := &recordingSink{}

	res := newTestRelay(prompts, responses, newFakeClock()).Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateComplete {
		t.Fatalf("expected complete, got %s", res.State)
	}
	if res.TokensSent != 4 {
		t.Fatalf("expected 4 tokens sent, got %d", res.TokensSent)
	}
	if got := streamedText(sink.events); got != "abcd" {
		t.Fatalf("expected concatenated tokens abcd, got %q", got)
	}
	if len(sink.events) != 4 {
		t.Fatalf("expected 3 token events and 1 completion, got %d events", len(sink.events))
	}
	if !sink.events[0].Partial || !sink.events[1].Partial {
		t.Fatalf("expected early batches to be partial")
	}
	if sink.events[2].Partial || *sink.events[2].TotalTokens != 4 {
		t.Fatalf("expected final batch non-partial with total 4, got %+v", sink.events[2])
	}
	final := sink.last()
	if !final.Complete || final.Partial || len(final.Tokens) != 0 || *final.TotalTokens != 4 {
		t.Fatalf("unexpected completion event: %+v", final)
	}
}

func TestRelayDeliversEveryScheduleExactlyOnce(t *testing.T) {
	full := []string{"The", " plan", " has", " five", " parts", "."}
	schedules := map[string][]int{
		"one shot":       {6},
		"token by token": {1, 2, 3, 4, 5, 6},
		"bursty":         {0, 0, 2, 2, 5, 6},
		"late start":     {0, 0, 0, 0, 6},
	}
	for name, lengths := range schedules {
		t.Run(name, func(t *testing.T) {
			responses := &scriptedResponses{fn: func(read int) (domain.Response, error) {
				idx := read - 1
				if idx >= len(lengths) {
					idx = len(lengths) - 1
				}
				n := lengths[idx]
				return responseWith(full[:n], idx == len(lengths)-1), nil
			}}
			sink := &recordingSink{}
			res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, newFakeClock()).
				Run(context.Background(), Request{PromptID: testPromptID}, sink)

			if res.State != StateComplete {
				t.Fatalf("expected complete, got %s", res.State)
			}
			if got := streamedText(sink.events); got != strings.Join(full, "") {
				t.Fatalf("expected %q, got %q", strings.Join(full, ""), got)
			}
			completions := 0
			for _, ev := range sink.events {
				if ev.Complete {
					completions++
				}
			}
			if completions != 1 || !sink.last().Complete {
				t.Fatalf("expected exactly one trailing completion, got %d", completions)
			}
		})
	}
}

func TestRelayDrainsBeforeCompleting(t *testing.T) {
	// El worker marca complete en la misma lectura en que aparecen los ultimos tokens.
	responses := &scriptedResponses{fn: func(read int) (domain.Response, error) {
		if read == 1 {
			return responseWith([]string{"a"}, false), nil
		}
		return responseWith([]string{"a", "b", "c"}, true), nil
	}}
	sink := &recordingSink{}
	res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateComplete {
		t.Fatalf("expected complete, got %s", res.State)
	}
	if len(sink.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(sink.events))
	}
	if got := sink.events[1].Text(); got != "bc" {
		t.Fatalf("expected remaining tokens before completion, got %q", got)
	}
	if !sink.events[2].Complete || *sink.events[2].TotalTokens != 3 {
		t.Fatalf("expected completion after drain, got %+v", sink.events[2])
	}
}

func TestRelayNeverCompletesWithUnsentTokens(t *testing.T) {
	responses := &scriptedResponses{fn: func(int) (domain.Response, error) {
		return responseWith([]string{"a", "b"}, true), nil
	}}
	// El lote de tokens no llega a escribirse.
	sink := &recordingSink{failOn: 1}
	res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State == StateComplete {
		t.Fatalf("expected session not to complete with unsent tokens")
	}
	if res.TokensSent != 0 {
		t.Fatalf("expected 0 tokens sent, got %d", res.TokensSent)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no events recorded, got %+v", sink.events)
	}
}

func TestRelayPromptNeverAppears(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	prompts := &scriptedPrompts{fn: func(int) (domain.Prompt, error) {
		return domain.Prompt{}, repository.ErrNotFound
	}}
	responses := &scriptedResponses{fn: func(int) (domain.Response, error) {
		t.Fatalf("responses must not be read")
		return domain.Response{}, nil
	}}
	sink := &recordingSink{}

	res := newTestRelay(prompts, responses, clock).Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateError {
		t.Fatalf("expected error state, got %s", res.State)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if !ev.Error || ev.Partial || ev.Text() != msgPromptNotFound {
		t.Fatalf("unexpected error event: %+v", ev)
	}
	if prompts.count() != 20 {
		t.Fatalf("expected 20 prompt reads, got %d", prompts.count())
	}
	if elapsed := clock.Now().Sub(start); elapsed > 10*time.Second {
		t.Fatalf("expected failure within 10s of virtual time, took %v", elapsed)
	}
}

func TestRelayPromptWithoutResponseID(t *testing.T) {
	prompts := &scriptedPrompts{fn: func(int) (domain.Prompt, error) {
		return domain.Prompt{ID: testPromptID, UserID: "u1"}, nil
	}}
	sink := &recordingSink{}
	res := newTestRelay(prompts, &scriptedResponses{}, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateError || len(sink.events) != 1 || sink.events[0].Text() != msgNoResponse {
		t.Fatalf("expected no-response error, got state=%s events=%+v", res.State, sink.events)
	}
	if prompts.count() != 20 {
		t.Fatalf("expected 20 prompt reads, got %d", prompts.count())
	}
}

func TestRelayPromptAppearsLate(t *testing.T) {
	prompts := &scriptedPrompts{fn: func(read int) (domain.Prompt, error) {
		switch {
		case read <= 3:
			return domain.Prompt{}, repository.ErrNotFound
		case read <= 5:
			return domain.Prompt{ID: testPromptID, UserID: "u1"}, nil
		default:
			return linkedPrompt(read)
		}
	}}
	responses := &scriptedResponses{fn: func(int) (domain.Response, error) {
		return responseWith([]string{"ok"}, true), nil
	}}
	sink := &recordingSink{}
	res := newTestRelay(prompts, responses, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateComplete {
		t.Fatalf("expected complete, got %s", res.State)
	}
	if prompts.count() != 6 {
		t.Fatalf("expected 6 prompt reads, got %d", prompts.count())
	}
	if responses.count() != 1 {
		t.Fatalf("expected response read right after linking, got %d", responses.count())
	}
}

func TestRelayInvalidResponseID(t *testing.T) {
	prompts := &scriptedPrompts{fn: func(int) (domain.Prompt, error) {
		return domain.Prompt{ID: testPromptID, UserID: "u1", ResponseID: "not-an-object-id"}, nil
	}}
	responses := &scriptedResponses{}
	sink := &recordingSink{}
	res := newTestRelay(prompts, responses, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateError || len(sink.events) != 1 || sink.events[0].Text() != msgInvalidResponseID {
		t.Fatalf("expected invalid id error, got state=%s events=%+v", res.State, sink.events)
	}
	if responses.count() != 0 {
		t.Fatalf("expected no response reads, got %d", responses.count())
	}
}

func TestRelayResponseNotFoundAfterGrace(t *testing.T) {
	responses := &scriptedResponses{fn: func(int) (domain.Response, error) {
		return domain.Response{}, repository.ErrNotFound
	}}
	sink := &recordingSink{}
	res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateError || len(sink.events) != 1 || sink.events[0].Text() != msgResponseNotFound {
		t.Fatalf("expected response-not-found error, got state=%s events=%+v", res.State, sink.events)
	}
	// Lecturas en t=0, 0.5s, ..., 5.5s: la primera que supera la gracia de 5s es la 12.
	if responses.count() != 12 {
		t.Fatalf("expected 12 response reads, got %d", responses.count())
	}
}

func TestRelayInactivityTimeout(t *testing.T) {
	clock := newFakeClock()
	responses := &scriptedResponses{fn: func(int) (domain.Response, error) {
		return responseWith([]string{"Hi"}, false), nil
	}}
	sink := &recordingSink{}
	res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, clock).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateTimedOut {
		t.Fatalf("expected timed_out, got %s", res.State)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected token event and timeout event, got %d", len(sink.events))
	}
	if ev := sink.last(); !ev.Error || ev.Text() != msgInactivity {
		t.Fatalf("unexpected terminal event: %+v", ev)
	}
	// La ultima actividad fue la primera lectura; el corte llega en la primera
	// lectura que supera 60s.
	if responses.count() != 122 {
		t.Fatalf("expected 122 response reads, got %d", responses.count())
	}
}

func TestRelayInactivityResetsOnNewTokens(t *testing.T) {
	responses := &scriptedResponses{fn: func(read int) (domain.Response, error) {
		// Un token nuevo cada 100 lecturas (50s): nunca se supera el umbral.
		n := read/100 + 1
		tokens := make([]string, n)
		for i := range tokens {
			tokens[i] = "x"
		}
		return responseWith(tokens, n == 4), nil
	}}
	sink := &recordingSink{}
	res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateComplete {
		t.Fatalf("expected complete, got %s", res.State)
	}
	if res.TokensSent != 4 {
		t.Fatalf("expected 4 tokens, got %d", res.TokensSent)
	}
}

func TestRelayStopsPollingAfterDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	responses := &scriptedResponses{fn: func(read int) (domain.Response, error) {
		tokens := make([]string, read)
		for i := range tokens {
			tokens[i] = "t"
		}
		return responseWith(tokens, false), nil
	}}
	sink := &recordingSink{onSend: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, newFakeClock()).
		Run(ctx, Request{PromptID: testPromptID}, sink)

	if res.State != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", res.State)
	}
	if responses.count() != 2 {
		t.Fatalf("expected no reads after disconnect, got %d reads", responses.count())
	}
	for _, ev := range sink.events {
		if ev.Error || ev.Complete {
			t.Fatalf("expected no terminal event after disconnect, got %+v", ev)
		}
	}
}

// manualClock entrega timers que nunca disparan y registra si fueron detenidos.
type manualClock struct {
	mu      sync.Mutex
	created chan struct{}
	stopped bool
}

func (c *manualClock) Now() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func (c *manualClock) NewTimer(time.Duration) Timer {
	c.created <- struct{}{}
	return &manualTimer{clock: c, ch: make(chan time.Time)}
}

type manualTimer struct {
	clock *manualClock
	ch    chan time.Time
}

func (t *manualTimer) C() <-chan time.Time { return t.ch }

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.clock.stopped = true
	return true
}

func TestRelayStopsTimerOnCancel(t *testing.T) {
	clock := &manualClock{created: make(chan struct{}, 1)}
	prompts := &scriptedPrompts{fn: func(int) (domain.Prompt, error) {
		return domain.Prompt{}, repository.ErrNotFound
	}}
	r := newTestRelay(prompts, &scriptedResponses{}, clock)
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}

	done := make(chan Result, 1)
	go func() {
		done <- r.Run(ctx, Request{PromptID: testPromptID}, sink)
	}()

	select {
	case <-clock.created:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected relay to start waiting")
	}
	cancel()

	var res Result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected relay to return after cancel")
	}
	if res.State != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", res.State)
	}
	clock.mu.Lock()
	stopped := clock.stopped
	clock.mu.Unlock()
	if !stopped {
		t.Fatalf("expected pending timer to be stopped")
	}
	if prompts.count() != 1 || len(sink.events) != 0 {
		t.Fatalf("expected one read and no events, got reads=%d events=%d", prompts.count(), len(sink.events))
	}
}

func TestRelayStoreFailures(t *testing.T) {
	t.Run("before streaming", func(t *testing.T) {
		prompts := &scriptedPrompts{fn: func(int) (domain.Prompt, error) {
			return domain.Prompt{}, errors.New("connection refused")
		}}
		sink := &recordingSink{}
		res := newTestRelay(prompts, &scriptedResponses{}, newFakeClock()).
			Run(context.Background(), Request{PromptID: testPromptID}, sink)
		if res.State != StateError || len(sink.events) != 1 || sink.events[0].Text() != msgSetupFailed {
			t.Fatalf("expected setup failure, got state=%s events=%+v", res.State, sink.events)
		}
	})

	t.Run("during streaming", func(t *testing.T) {
		responses := &scriptedResponses{fn: func(read int) (domain.Response, error) {
			if read == 1 {
				return responseWith([]string{"a"}, false), nil
			}
			return domain.Response{}, errors.New("pq: relation does not exist")
		}}
		sink := &recordingSink{}
		res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, newFakeClock()).
			Run(context.Background(), Request{PromptID: testPromptID}, sink)
		if res.State != StateError {
			t.Fatalf("expected error, got %s", res.State)
		}
		ev := sink.last()
		if ev.Text() != msgServerError || strings.Contains(ev.Text(), "relation") {
			t.Fatalf("expected generic server error, got %q", ev.Text())
		}
	})
}

func TestRelayRejectsForeignPrompt(t *testing.T) {
	prompts := &scriptedPrompts{fn: linkedPrompt}
	sink := &recordingSink{}
	res := newTestRelay(prompts, &scriptedResponses{}, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID, UserID: "intruder"}, sink)

	if res.State != StateError || len(sink.events) != 1 || sink.events[0].Text() != msgPromptNotFound {
		t.Fatalf("expected not-found for foreign prompt, got state=%s events=%+v", res.State, sink.events)
	}
	if prompts.count() != 1 {
		t.Fatalf("expected a single read, got %d", prompts.count())
	}
}

func TestRelayGenerationFailure(t *testing.T) {
	responses := &scriptedResponses{fn: func(int) (domain.Response, error) {
		r := responseWith([]string{"Par", "tial"}, true)
		r.Error = "CUDA out of memory"
		return r, nil
	}}
	sink := &recordingSink{}
	res := newTestRelay(&scriptedPrompts{fn: linkedPrompt}, responses, newFakeClock()).
		Run(context.Background(), Request{PromptID: testPromptID}, sink)

	if res.State != StateError {
		t.Fatalf("expected error, got %s", res.State)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected token batch and error event, got %d", len(sink.events))
	}
	if !sink.events[0].Partial || sink.events[0].Text() != "Partial" {
		t.Fatalf("expected drained tokens flagged partial, got %+v", sink.events[0])
	}
	if ev := sink.last(); !ev.Error || ev.Text() != msgGenerationFailed {
		t.Fatalf("unexpected terminal event: %+v", ev)
	}
}

func TestEventJSON(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{"tokens", tokenEvent([]string{"Hi"}, 2, true), `{"tokens":["Hi"],"partial":true,"totalTokens":2}`},
		{"complete", completeEvent(2), `{"tokens":[],"partial":false,"totalTokens":2,"complete":true}`},
		{"error", errorEvent(msgInactivity), `{"tokens":["Error: Stream timed out due to inactivity."],"partial":false,"error":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.ev)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, data)
			}
		})
	}
}
