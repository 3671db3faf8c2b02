package tencent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

type recordedFrame struct {
	messageType int
	payload     []byte
}

// fakeASRServer upgrades one connection and runs script against it.
func fakeASRServer(t *testing.T, script func(conn *websocket.Conn)) (string, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	return "ws" + strings.TrimPrefix(server.URL, "http"), server.Close
}

func collectEvents(t *testing.T, events <-chan domain.RecognitionEvent) []domain.RecognitionEvent {
	t.Helper()
	var out []domain.RecognitionEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("events channel never closed; got %+v", out)
		}
	}
}

func TestTransportStreamsAudioAndDecodesResults(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var received []recordedFrame

	url, stop := fakeASRServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"code":0,"message":"success","voice_id":"v"}`))
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, recordedFrame{messageType: messageType, payload: payload})
			mu.Unlock()
			if messageType == websocket.TextMessage {
				break
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"code":0,"result":{"slice_type":2,"voice_text_str":"你好"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"code":0,"result":{"slice_type":1,"voice_text_str":"世界"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"code":0,"final":1}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	})
	defer stop()

	conn, err := NewTransport(nil).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.SendAudio([]byte{1, 0, 2, 0}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}
	if err := conn.SendAudio([]byte{3, 0}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}
	if err := conn.SendEnd(); err != nil {
		t.Fatalf("send end failed: %v", err)
	}
	if err := conn.SendEnd(); err == nil {
		t.Fatalf("second end of stream should be rejected")
	}

	events := collectEvents(t, conn.Events())
	want := []domain.RecognitionEvent{
		{Kind: domain.RecognitionEventTranscript, Text: "你好", Stable: true},
		{Kind: domain.RecognitionEventTranscript, Text: "世界"},
		{Kind: domain.RecognitionEventFinal},
	}
	if len(events) != len(want) {
		t.Fatalf("unexpected events: %+v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
	if err := conn.Wait(); err != nil {
		t.Fatalf("normal close should not be an error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Fatalf("expected 3 frames at server, got %d", len(received))
	}
	if received[0].messageType != websocket.BinaryMessage || string(received[0].payload) != string([]byte{1, 0, 2, 0}) {
		t.Fatalf("unexpected first frame: %+v", received[0])
	}
	if received[2].messageType != websocket.TextMessage || string(received[2].payload) != `{"type":"end"}` {
		t.Fatalf("unexpected end frame: %+v", received[2])
	}
}

func TestTransportSendsAfterNormalCloseReportClosed(t *testing.T) {
	t.Parallel()

	url, stop := fakeASRServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	})
	defer stop()

	conn, err := NewTransport(nil).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	collectEvents(t, conn.Events())
	if err := conn.Wait(); err != nil {
		t.Fatalf("normal close should not be an error: %v", err)
	}
	if err := conn.SendAudio([]byte{1, 0}); !errors.Is(err, ports.ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed from send audio, got %v", err)
	}
	if err := conn.SendEnd(); !errors.Is(err, ports.ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed from send end, got %v", err)
	}
}

func TestTransportAbnormalCloseIsError(t *testing.T) {
	t.Parallel()

	url, stop := fakeASRServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"code":4002,"message":"鉴权失败"}`))
		_ = conn.UnderlyingConn().Close()
	})
	defer stop()

	conn, err := NewTransport(nil).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	events := collectEvents(t, conn.Events())
	if len(events) != 1 || events[0].Kind != domain.RecognitionEventError || events[0].Code != 4002 {
		t.Fatalf("unexpected events: %+v", events)
	}
	if err := conn.Wait(); err == nil {
		t.Fatalf("expected transport error after abnormal close")
	}
	if err := conn.SendAudio([]byte{1, 2}); err == nil {
		t.Fatalf("send after close should fail")
	}
}

func TestTransportCloseByClient(t *testing.T) {
	t.Parallel()

	url, stop := fakeASRServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer stop()

	conn, err := NewTransport(nil).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if events := collectEvents(t, conn.Events()); len(events) != 0 {
		t.Fatalf("unexpected events: %+v", events)
	}
	if err := conn.Wait(); err != nil {
		t.Fatalf("client close should not be an error: %v", err)
	}
}

func TestTransportContextCancelCloses(t *testing.T) {
	t.Parallel()

	url, stop := fakeASRServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := NewTransport(nil).Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	cancel()
	collectEvents(t, conn.Events())
	if err := conn.Wait(); err != nil {
		t.Fatalf("cancellation should not be an error: %v", err)
	}
}

func TestTransportDialFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewTransport(nil).Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"))
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected handshake failure with status, got %v", err)
	}
	if _, err := NewTransport(nil).Dial(context.Background(), " "); err == nil {
		t.Fatalf("expected empty url error")
	}
}
