package call

import (
	"context"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/CareCall/internal/client/media"
	"github.com/qrave1/CareCall/internal/client/peer"
	"github.com/qrave1/CareCall/internal/domain/events"
)

const testRoom = "consultation-1"

type fakeSignaler struct {
	mu       sync.Mutex
	sent     []events.Message
	closed   bool
	incoming chan events.Message
	done     chan struct{}
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{
		incoming: make(chan events.Message, 32),
		done:     make(chan struct{}),
	}
}

func (f *fakeSignaler) Send(msg events.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrTransportGone
	}

	f.sent = append(f.sent, msg)

	return nil
}

func (f *fakeSignaler) Incoming() <-chan events.Message {
	return f.incoming
}

func (f *fakeSignaler) Done() <-chan struct{} {
	return f.done
}

func (f *fakeSignaler) deliver(t *testing.T, typ events.Type, payload any) {
	t.Helper()

	f.deliverTo(t, testRoom, typ, payload)
}

func (f *fakeSignaler) deliverTo(t *testing.T, roomID string, typ events.Type, payload any) {
	t.Helper()

	msg, err := events.New(typ, roomID, payload)
	require.NoError(t, err)

	f.incoming <- msg
}

func (f *fakeSignaler) closeTransport() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

func (f *fakeSignaler) sentOf(typ events.Type) []events.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []events.Message
	for _, m := range f.sent {
		if m.Type == typ {
			out = append(out, m)
		}
	}

	return out
}

func (f *fakeSignaler) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

type fakeSource struct {
	err       error
	gate      chan struct{}
	ignoreCtx bool

	mu      sync.Mutex
	streams []*media.Stream
}

func (s *fakeSource) Acquire(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if s.gate != nil {
		if s.ignoreCtx {
			<-s.gate
		} else {
			select {
			case <-s.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if s.err != nil {
		return nil, s.err
	}

	stream, err := media.NewSyntheticSource().Acquire(context.Background(), c)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.streams = append(s.streams, stream)
	s.mu.Unlock()

	return stream, nil
}

func (s *fakeSource) acquired() []*media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*media.Stream(nil), s.streams...)
}

type fakePeer struct {
	mu         sync.Mutex
	handlers   peer.Handlers
	stream     *media.Stream
	offers     int
	answers    int
	offerSDP   string
	answerSDP  string
	candidates []webrtc.ICECandidateInit
	closed     bool
}

func (p *fakePeer) AddTracks(stream *media.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stream = stream

	return nil
}

func (p *fakePeer) CreateOffer() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.offers++

	return "local-offer", nil
}

func (p *fakePeer) AcceptOffer(sdp string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.offerSDP = sdp
	p.answers++

	return "local-answer", nil
}

func (p *fakePeer) ApplyAnswer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.answerSDP = sdp

	return nil
}

func (p *fakePeer) AddCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.candidates = append(p.candidates, c)

	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *fakePeer) candidateList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.candidates))
	for _, c := range p.candidates {
		out = append(out, c.Candidate)
	}

	return out
}

func (p *fakePeer) remoteTrack(kind string) {
	p.handlers.OnRemoteTrack(&peer.RemoteTrack{ID: "remote-" + kind, StreamID: "remote", Kind: kind})
}

func (p *fakePeer) state(s webrtc.PeerConnectionState) {
	p.handlers.OnStateChange(s)
}

type fakePeerFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakePeerFactory) New(_ []webrtc.ICEServer, h peer.Handlers) (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := &fakePeer{handlers: h}
	f.peers = append(f.peers, p)

	return p, nil
}

func (f *fakePeerFactory) created() []*fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*fakePeer(nil), f.peers...)
}

func (f *fakePeerFactory) last(t *testing.T) *fakePeer {
	t.Helper()

	peers := f.created()
	require.NotEmpty(t, peers)

	return peers[len(peers)-1]
}
