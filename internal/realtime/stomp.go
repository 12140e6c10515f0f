package realtime

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-stomp/stomp"
	"github.com/go-stomp/stomp/frame"
	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/immxrtalbeast/clipguess/lib/logger/sl"
	"github.com/segmentio/encoding/json"
)

type frameSender interface {
	Send(destination, contentType string, body []byte, opts ...func(*frame.Frame) error) error
}

type broadcast struct {
	Room      string           `json:"room"`
	Type      domain.EventType `json:"type"`
	Payload   any              `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

type outgoing struct {
	destination string
	body        []byte
}

// StompPublisher mirrors room events to a STOMP broker topic per room.
// Frames are sent from a single background goroutine.
type StompPublisher struct {
	conn        frameSender
	topicPrefix string
	log         *slog.Logger

	queue chan outgoing
	done  chan struct{}
	once  sync.Once
	close func() error
}

func DialStomp(address, login, passcode, topicPrefix string, log *slog.Logger) (*StompPublisher, error) {
	const op = "realtime.stomp.dial"

	conn, err := stomp.Dial("tcp", address,
		stomp.ConnOpt.Login(login, passcode),
		stomp.ConnOpt.Host("/"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p := newStompPublisher(conn, topicPrefix, log)
	p.close = conn.Disconnect
	return p, nil
}

func newStompPublisher(conn frameSender, topicPrefix string, log *slog.Logger) *StompPublisher {
	if log == nil {
		log = slog.Default()
	}
	p := &StompPublisher{
		conn:        conn,
		topicPrefix: topicPrefix,
		log:         log,
		queue:       make(chan outgoing, 256),
		done:        make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *StompPublisher) Publish(roomCode string, _ []string, event domain.Event) {
	const op = "realtime.stomp.publish"

	body, err := json.Marshal(broadcast{
		Room:      roomCode,
		Type:      event.Type,
		Payload:   event.Payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		p.log.Error("failed to encode broadcast", slog.String("op", op), sl.Err(err))
		return
	}

	select {
	case p.queue <- outgoing{destination: p.topicPrefix + roomCode, body: body}:
	default:
		p.log.Warn("broker queue full, broadcast dropped",
			slog.String("op", op),
			slog.String("room", roomCode),
			slog.String("event", string(event.Type)),
		)
	}
}

func (p *StompPublisher) loop() {
	const op = "realtime.stomp.loop"
	defer close(p.done)

	for msg := range p.queue {
		if err := p.conn.Send(msg.destination, "application/json", msg.body); err != nil {
			p.log.Warn("could not send broadcast",
				slog.String("op", op),
				slog.String("destination", msg.destination),
				sl.Err(err),
			)
		}
	}
}

// Close drains pending frames and disconnects. Publish must not be called
// after Close.
func (p *StompPublisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.queue)
		<-p.done
		if p.close != nil {
			err = p.close()
		}
	})
	return err
}
