package broadcast

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type recordingObserver struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (o *recordingObserver) Send(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errors.New("broken pipe")
	}
	o.frames = append(o.frames, data)
	return nil
}

func (o *recordingObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *recordingObserver) received() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]byte(nil), o.frames...)
}

func TestHub_BroadcastDelivers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a, b := &recordingObserver{}, &recordingObserver{}
	hub.Subscribe("w-1", a)
	hub.Subscribe("w-1", b)
	hub.Subscribe("w-1", a)

	if hub.Count("w-1") != 2 {
		t.Fatalf("Count = %d, want 2", hub.Count("w-1"))
	}

	hub.Broadcast("w-1", NewEnvelope(TypeAgentMessage, 3, map[string]any{"content": "hello"}))

	for name, obs := range map[string]*recordingObserver{"a": a, "b": b} {
		frames := obs.received()
		if len(frames) != 1 {
			t.Fatalf("%s received %d frames, want 1", name, len(frames))
		}
		var env Envelope
		if err := json.Unmarshal(frames[0], &env); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if env.Type != TypeAgentMessage || env.Epoch != 3 || env.Payload["content"] != "hello" {
			t.Errorf("%s: envelope = %+v", name, env)
		}
		if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
			t.Errorf("%s: timestamp %q not RFC3339", name, env.Timestamp)
		}
	}
	if string(a.received()[0]) != string(b.received()[0]) {
		t.Error("expected identical payloads for all observers")
	}
}

func TestHub_BroadcastIsolatesWorlds(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a, b := &recordingObserver{}, &recordingObserver{}
	hub.Subscribe("w-1", a)
	hub.Subscribe("w-2", b)

	hub.Broadcast("w-1", NewEnvelope(TypePostCreated, 0, nil))

	if len(a.received()) != 1 {
		t.Errorf("w-1 observer frames = %d, want 1", len(a.received()))
	}
	if len(b.received()) != 0 {
		t.Errorf("w-2 observer frames = %d, want 0", len(b.received()))
	}
}

func TestHub_BroadcastPrunesFailedObservers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	good := &recordingObserver{}
	bad := &recordingObserver{fail: true}
	hub.Subscribe("w-1", good)
	hub.Subscribe("w-1", bad)

	hub.Broadcast("w-1", NewEnvelope(TypeEventTriggered, 0, nil))

	if hub.Count("w-1") != 1 {
		t.Errorf("Count = %d, want 1 after pruning", hub.Count("w-1"))
	}
	if !bad.closed {
		t.Error("expected failed observer to be closed")
	}
	if good.closed {
		t.Error("healthy observer must stay open")
	}

	hub.Broadcast("w-1", NewEnvelope(TypeEventTriggered, 0, nil))
	if len(good.received()) != 2 {
		t.Errorf("good observer frames = %d, want 2", len(good.received()))
	}
}

func TestHub_BroadcastWithoutObservers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Broadcast("nobody", NewEnvelope(TypeWikiEdit, 0, nil))
	if hub.Count("nobody") != 0 {
		t.Error("expected no observers")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := &recordingObserver{}
	hub.Subscribe("w-1", a)
	hub.Unsubscribe("w-1", a)
	hub.Unsubscribe("w-1", a)

	hub.Broadcast("w-1", NewEnvelope(TypeAgentMessage, 0, nil))
	if len(a.received()) != 0 {
		t.Error("unsubscribed observer received a frame")
	}
	if a.closed {
		t.Error("Unsubscribe must not close the observer")
	}
}

func TestHub_ConcurrentBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	obs := &recordingObserver{}
	hub.Subscribe("w-1", obs)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast("w-1", NewEnvelope(TypeAgentMessage, 0, nil))
		}()
	}
	wg.Wait()

	if len(obs.received()) != 20 {
		t.Errorf("frames = %d, want 20", len(obs.received()))
	}
}

func TestWSObserver_SendAndClose(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	hub := NewHub(zerolog.Nop())
	subscribed := make(chan *WSObserver, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		obs := NewWSObserver(conn)
		hub.Subscribe("w-1", obs)
		subscribed <- obs
		obs.Drain()
		hub.Unsubscribe("w-1", obs)
		obs.Close()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	obs := <-subscribed
	hub.Broadcast("w-1", NewEnvelope(TypeHeraldAnnouncement, 1, map[string]any{"text": "The sky splits."}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeHeraldAnnouncement || env.Payload["text"] != "The sky splits." {
		t.Errorf("envelope = %+v", env)
	}

	if err := obs.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := obs.Send([]byte("late")); err == nil {
		t.Error("expected Send after Close to fail")
	}
}
