package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/go-stomp/stomp/frame"
	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  map[string][][]byte
	types []string
	fail  bool
}

func (f *fakeSender) Send(destination, contentType string, body []byte, _ ...func(*frame.Frame) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	if f.sent == nil {
		f.sent = make(map[string][][]byte)
	}
	f.sent[destination] = append(f.sent[destination], body)
	f.types = append(f.types, contentType)
	return nil
}

func TestStompPublisherMirrorsEvents(t *testing.T) {
	sender := &fakeSender{}
	pub := newStompPublisher(sender, "/topic/clipguess.room.", discardLogger())

	pub.Publish("ROOM01", []string{"s1"}, domain.Event{
		Type:    domain.EventPreloadProgress,
		Payload: domain.PreloadProgressPayload{RoomCode: "ROOM01", Loaded: 1, Total: 10},
	})
	pub.Publish("ROOM02", nil, domain.Event{Type: domain.EventGameOver})
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	require.Len(t, sender.sent["/topic/clipguess.room.ROOM01"], 1)
	require.Len(t, sender.sent["/topic/clipguess.room.ROOM02"], 1)
	assert.Equal(t, []string{"application/json", "application/json"}, sender.types)

	var got struct {
		Room    string `json:"room"`
		Type    string `json:"type"`
		Payload struct {
			Loaded int `json:"loaded"`
			Total  int `json:"total"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(sender.sent["/topic/clipguess.room.ROOM01"][0], &got))
	assert.Equal(t, "ROOM01", got.Room)
	assert.Equal(t, "preload_progress", got.Type)
	assert.Equal(t, 1, got.Payload.Loaded)
	assert.Equal(t, 10, got.Payload.Total)
}

func TestStompPublisherSurvivesSendErrors(t *testing.T) {
	sender := &fakeSender{fail: true}
	pub := newStompPublisher(sender, "/topic/x.", discardLogger())

	pub.Publish("ROOM01", nil, domain.Event{Type: domain.EventRoomUpdated})
	assert.NoError(t, pub.Close())
	assert.Empty(t, sender.sent)
}
