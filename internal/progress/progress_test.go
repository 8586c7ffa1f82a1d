package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/mq"
)

type failingSink struct{ calls int }

func (s *failingSink) Publish(context.Context, Event) error {
	s.calls++
	return errors.New("sink down")
}

type fakePublisher struct {
	variant string
	payload any
	err     error
}

func (p *fakePublisher) PublishProgress(_ context.Context, variant string, payload any) error {
	p.variant = variant
	p.payload = payload
	return p.err
}

func TestReporter_ClampsPercent(t *testing.T) {
	rec := &Recorder{}
	r := NewReporter(context.Background(), rec, uuid.New(), domain.VariantPassenger, domain.PhaseStart, nil)

	r.Notify(-5, "below")
	r.Notify(140, "above")
	r.Notify(38, "ok")

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []int{0, 100, 38}
	for i, ev := range events {
		if ev.Percent != want[i] {
			t.Errorf("event %d percent = %d, want %d", i, ev.Percent, want[i])
		}
	}
}

func TestReporter_StepAndSession(t *testing.T) {
	rec := &Recorder{}
	sessionID := uuid.New()
	r := NewReporter(context.Background(), rec, sessionID, domain.VariantFreight, domain.PhaseResume, nil)

	step := domain.StepDef{Index: 6, Name: "confirm_sign"}
	r.Step(step, 40, StatusSucceeded, "6. confirm_sign completed")
	r.Session(StatusCompleted, "done")

	last, ok := rec.Last()
	if !ok {
		t.Fatal("expected recorded events")
	}
	if last.Percent != 40 {
		t.Errorf("session event percent = %d, want 40", last.Percent)
	}
	if last.Status != StatusCompleted || last.StepIndex != 0 {
		t.Errorf("unexpected session event: %+v", last)
	}
	if last.SessionID != sessionID || last.Phase != domain.PhaseResume || last.Variant != domain.VariantFreight {
		t.Errorf("base fields not applied: %+v", last)
	}

	steps := rec.StepEvents()
	if len(steps) != 1 || steps[0].StepName != "confirm_sign" {
		t.Errorf("StepEvents() = %+v", steps)
	}
}

func TestReporter_SinkErrorIgnored(t *testing.T) {
	sink := &failingSink{}
	r := NewReporter(context.Background(), sink, uuid.New(), domain.VariantPassenger, domain.PhaseStart, nil)

	r.Notify(10, "a")
	r.Notify(20, "b")

	if sink.calls != 2 {
		t.Errorf("expected 2 publish calls, got %d", sink.calls)
	}
}

func TestReporter_NilSink(t *testing.T) {
	r := NewReporter(context.Background(), nil, uuid.New(), domain.VariantPassenger, domain.PhaseStart, nil)
	r.Notify(50, "no sink")
}

func TestFanout(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	bad := &failingSink{}
	f := Fanout{a, bad, nil, b}

	err := f.Publish(context.Background(), Event{Message: "x"})
	if err == nil {
		t.Error("expected joined error from failing sink")
	}
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("expected both recorders to receive the event")
	}
}

func TestMQSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQSink(pub)

	ev := Event{SessionID: uuid.New(), Variant: domain.VariantFreight, Percent: 20}
	if err := sink.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if pub.variant != "freight" {
		t.Errorf("variant = %q, want freight", pub.variant)
	}

	pub.err = errors.New("broker down")
	if err := sink.Publish(context.Background(), ev); err == nil {
		t.Error("expected error")
	}
}

func TestRelay(t *testing.T) {
	rec := &Recorder{}
	handler := Relay(rec, nil)

	ev := Event{SessionID: uuid.New(), Percent: 62, Message: "8. bind_vehicle completed"}
	body, _ := json.Marshal(ev)
	var payload map[string]any
	json.Unmarshal(body, &payload)

	d := &mq.Delivery{Message: mq.Message{Type: mq.MessageTypeProgress, Payload: payload}}
	if err := handler(context.Background(), d); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	got, ok := rec.Last()
	if !ok || got.SessionID != ev.SessionID || got.Percent != 62 {
		t.Errorf("relayed event = %+v", got)
	}

	other := &mq.Delivery{Message: mq.Message{Type: "other"}}
	if err := handler(context.Background(), other); err != nil {
		t.Errorf("foreign message should be skipped, got %v", err)
	}
	if len(rec.Events()) != 1 {
		t.Errorf("foreign message must not be relayed")
	}
}

func dialHub(t *testing.T, srv *httptest.Server, sessionID uuid.UUID) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if sessionID != uuid.Nil {
		url += "?session_id=" + sessionID.String()
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Clients(context.Background()) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients", n)
}

func TestHub_FiltersBySession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id uuid.UUID
		if raw := r.URL.Query().Get("session_id"); raw != "" {
			id = uuid.MustParse(raw)
		}
		if err := hub.ServeWS(w, r, id); err != nil {
			t.Errorf("ServeWS: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	mine, other := uuid.New(), uuid.New()
	connMine := dialHub(t, srv, mine)
	connOther := dialHub(t, srv, other)
	connAll := dialHub(t, srv, uuid.Nil)
	waitClients(t, hub, 3)

	if err := hub.Publish(ctx, Event{SessionID: mine, Percent: 7, Message: "1. check_vehicle completed"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"mine": connMine, "all": connAll} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got Event
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("%s: read: %v", name, err)
		}
		if got.SessionID != mine || got.Percent != 7 {
			t.Errorf("%s: got %+v", name, got)
		}
	}

	connOther.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := connOther.ReadMessage(); err == nil {
		t.Error("client of another session must not receive the event")
	}
}

func TestHub_UnregisterOnClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, uuid.Nil)
	}))
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv, uuid.Nil)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_StopReleasesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, uuid.Nil)
	}))
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv, uuid.Nil)
	waitClients(t, hub, 1)

	cancel()
	<-stopped
	conn.Close()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := hub.Wait(waitCtx); err != nil {
		t.Fatalf("client goroutines still running after Run stopped: %v", err)
	}

	if got := hub.Clients(context.Background()); got != 0 {
		t.Errorf("Clients() after stop = %d, want 0", got)
	}
}

func TestHub_ServeWSAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	served := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served <- hub.ServeWS(w, r, uuid.Nil)
	}))
	t.Cleanup(srv.Close)

	dialHub(t, srv, uuid.Nil)

	select {
	case err := <-served:
		if !errors.Is(err, ErrHubClosed) {
			t.Errorf("ServeWS() error = %v, want ErrHubClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeWS blocked after hub stopped")
	}
}
