package tencent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

// Transport dials the real-time recognition websocket.
type Transport struct {
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewTransport(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

func (t *Transport) Dial(ctx context.Context, url string) (ports.RecognitionConn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("recognition url is empty")
	}

	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to recognition websocket (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to recognition websocket: %w", err)
	}

	s := &streamConn{
		conn:     conn,
		logger:   t.logger,
		events:   make(chan domain.RecognitionEvent, 64),
		outbound: make(chan outboundFrame, 32),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		_ = conn.Close()
		close(s.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

type outboundFrame struct {
	messageType int
	payload     []byte
}

type streamConn struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events   chan domain.RecognitionEvent
	outbound chan outboundFrame
	closing  chan struct{}
	readDone chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	endOnce   sync.Once
	closeOnce sync.Once
}

func (s *streamConn) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return s.enqueue(outboundFrame{messageType: websocket.BinaryMessage, payload: append([]byte(nil), pcm...)})
}

func (s *streamConn) SendEnd() error {
	err := errors.New("end of stream already sent")
	s.endOnce.Do(func() {
		err = s.enqueue(outboundFrame{messageType: websocket.TextMessage, payload: endOfStream})
	})
	return err
}

func (s *streamConn) enqueue(frame outboundFrame) error {
	select {
	case <-s.readDone:
		return s.closedErr()
	case <-s.closing:
		return s.closedErr()
	default:
	}

	select {
	case s.outbound <- frame:
		return nil
	case <-s.readDone:
	case <-s.closing:
	}
	return s.closedErr()
}

func (s *streamConn) closedErr() error {
	if err := s.waitErr(); err != nil {
		return err
	}
	return ports.ErrConnClosed
}

func (s *streamConn) Events() <-chan domain.RecognitionEvent {
	return s.events
}

func (s *streamConn) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamConn) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *streamConn) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamConn) setErr(err error) {
	if err == nil {
		return
	}
	select {
	case <-s.closing:
		return
	default:
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamConn) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case frame := <-s.outbound:
			if err := s.conn.WriteMessage(frame.messageType, frame.payload); err != nil {
				s.setErr(fmt.Errorf("failed to send frame: %w", err))
				_ = s.conn.Close()
				return
			}
		case <-s.readDone:
			return
		case <-s.closing:
			return
		}
	}
}

func (s *streamConn) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read recognition message: %w", err))
			return
		}

		decoded, err := DecodeMessage(payload)
		if err != nil {
			s.logger.Warn("skipping malformed recognition message", slog.String("error", err.Error()))
			continue
		}
		for _, event := range decoded {
			select {
			case s.events <- event:
			case <-s.closing:
				return
			}
		}
	}
}
