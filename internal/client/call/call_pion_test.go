package call

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/CareCall/internal/client/media"
	"github.com/qrave1/CareCall/internal/domain"
	"github.com/qrave1/CareCall/internal/domain/events"
)

// memoryHub - комната сигналинга в памяти: join, relay и leave между двумя звонками
type memoryHub struct {
	t *testing.T

	mu   sync.Mutex
	ends []*hubEnd

	candidates atomic.Int32
}

type hubEnd struct {
	hub      *memoryHub
	id       uuid.UUID
	role     domain.Role
	joined   bool
	incoming chan events.Message
	done     chan struct{}
}

func newMemoryHub(t *testing.T) *memoryHub {
	return &memoryHub{t: t}
}

func (h *memoryHub) end(role domain.Role) *hubEnd {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := &hubEnd{
		hub:      h,
		id:       uuid.New(),
		role:     role,
		incoming: make(chan events.Message, 256),
		done:     make(chan struct{}),
	}
	h.ends = append(h.ends, e)

	return e
}

func (e *hubEnd) Send(msg events.Message) error {
	e.hub.route(e, msg)
	return nil
}

func (e *hubEnd) Incoming() <-chan events.Message {
	return e.incoming
}

func (e *hubEnd) Done() <-chan struct{} {
	return e.done
}

func (h *memoryHub) route(from *hubEnd, msg events.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Type {
	case events.TypeJoinRoom:
		from.joined = true

		ack := events.JoinedPayload{SessionID: from.id, Role: from.role}
		for _, other := range h.others(from) {
			ack.Peers = append(ack.Peers, events.PeerInfo{SessionID: other.id, Role: other.role})
		}
		h.deliver(from, events.TypeJoined, ack)

		for _, other := range h.others(from) {
			h.deliver(other, events.TypeUserJoined, events.PeerInfo{SessionID: from.id, Role: from.role})
		}

	case events.TypeOffer, events.TypeAnswer, events.TypeIceCandidate:
		if msg.Type == events.TypeIceCandidate {
			h.candidates.Add(1)
		}

		for _, other := range h.others(from) {
			other.incoming <- msg
		}

	case events.TypeLeaveRoom:
		from.joined = false

		for _, other := range h.others(from) {
			h.deliver(other, events.TypeUserLeft, events.PeerInfo{SessionID: from.id, Role: from.role})
		}
	}
}

func (h *memoryHub) others(self *hubEnd) []*hubEnd {
	var out []*hubEnd
	for _, e := range h.ends {
		if e != self && e.joined {
			out = append(out, e)
		}
	}

	return out
}

func (h *memoryHub) deliver(to *hubEnd, typ events.Type, payload any) {
	msg, err := events.New(typ, testRoom, payload)
	if err != nil {
		h.t.Errorf("build %s: %v", typ, err)
		return
	}

	to.incoming <- msg
}

// newHubCall - настоящий звонок: pion peer connection и синтетическое медиа
func newHubCall(t *testing.T, hub *memoryHub, role domain.Role, muted bool) *Call {
	t.Helper()

	disable := func(ev Event) {
		if !muted || ev.Kind != EventLocalStream {
			return
		}

		for _, track := range ev.Stream.Tracks() {
			track.SetEnabled(false)
		}
	}

	c, err := New(
		Config{RoomID: testRoom, Role: role, MediaTimeout: 5 * time.Second},
		hub.end(role),
		media.NewSyntheticSource(),
		WithListener(disable),
	)
	require.NoError(t, err)
	t.Cleanup(c.EndCall)

	return c
}

func TestCall_TwoPartiesOverPion(t *testing.T) {
	tests := []struct {
		name          string
		muteInitiator bool
		muteResponder bool
	}{
		{name: "both sending"},
		{name: "responder muted before connect", muteResponder: true},
		{name: "both muted before connect", muteInitiator: true, muteResponder: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newMemoryHub(t)

			doctor := newHubCall(t, hub, domain.RoleInitiator, tt.muteInitiator)
			patient := newHubCall(t, hub, domain.RoleResponder, tt.muteResponder)

			require.NoError(t, doctor.StartCall(context.Background()))
			require.NoError(t, patient.StartCall(context.Background()))

			deadline := time.Now().Add(20 * time.Second)
			for doctor.State() != StateConnected || patient.State() != StateConnected {
				if time.Now().After(deadline) {
					if hub.candidates.Load() == 0 {
						t.Skip("no network interface usable for ICE")
					}
					t.Fatalf("not connected: doctor %s, patient %s", doctor.State(), patient.State())
				}
				time.Sleep(20 * time.Millisecond)
			}

			assert.Equal(t, tt.muteInitiator, doctor.Muted())
			assert.Equal(t, tt.muteResponder, patient.Muted())

			// выключенный трек всё равно шлёт RTP, собеседник получает треки
			require.Eventually(t, func() bool {
				return len(doctor.RemoteTracks()) > 0 && len(patient.RemoteTracks()) > 0
			}, 10*time.Second, 50*time.Millisecond)

			for _, track := range patient.RemoteTracks() {
				require.Eventually(t, func() bool {
					return track.Stats().Packets > 0
				}, 10*time.Second, 50*time.Millisecond, track.Kind)
			}

			doctor.EndCall()
			assert.Equal(t, StateEnded, doctor.State())

			select {
			case <-patient.Done():
			case <-time.After(5 * time.Second):
				t.Fatal("patient call not ended after doctor left")
			}
			assert.Equal(t, StateEnded, patient.State())
		})
	}
}
