package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/client/media"
)

var ErrClosed = errors.New("peer connection closed")

// Handlers вызываются из горутин pion, обработчик не должен блокироваться
type Handlers struct {
	OnLocalCandidate func(webrtc.ICECandidateInit)
	OnRemoteTrack    func(*RemoteTrack)
	OnStateChange    func(webrtc.PeerConnectionState)
}

// Manager - одна peer connection звонка 1:1
type Manager struct {
	pc       *webrtc.PeerConnection
	handlers Handlers

	mu        sync.Mutex
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	closed    bool
	remotes   []*RemoteTrack
}

func NewManager(iceServers []webrtc.ICEServer, handlers Handlers) (*Manager, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	m := &Manager{
		pc:       pc,
		handlers: handlers,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil - конец сбора кандидатов
		if c == nil || m.handlers.OnLocalCandidate == nil {
			return
		}

		m.handlers.OnLocalCandidate(c.ToJSON())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		remote := newRemoteTrack(track)

		m.mu.Lock()
		m.remotes = append(m.remotes, remote)
		m.mu.Unlock()

		go remote.drain()

		if m.handlers.OnRemoteTrack != nil {
			m.handlers.OnRemoteTrack(remote)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if m.handlers.OnStateChange != nil {
			m.handlers.OnStateChange(state)
		}
	})

	return m, nil
}

// AddTracks добавляет локальные треки. Вызывать до CreateOffer/AcceptOffer.
func (m *Manager) AddTracks(stream *media.Stream) error {
	if stream == nil {
		return nil
	}

	for _, t := range stream.Tracks() {
		if _, err := m.pc.AddTrack(t.Local()); err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}

	return nil
}

func (m *Manager) CreateOffer() (string, error) {
	if m.isClosed() {
		return "", ErrClosed
	}

	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	if err = m.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	return offer.SDP, nil
}

// AcceptOffer применяет offer и возвращает answer
func (m *Manager) AcceptOffer(sdp string) (string, error) {
	if m.isClosed() {
		return "", ErrClosed
	}

	if err := m.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}

	m.flushCandidates()

	answer, err := m.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}

	if err = m.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	return answer.SDP, nil
}

func (m *Manager) ApplyAnswer(sdp string) error {
	if m.isClosed() {
		return ErrClosed
	}

	if err := m.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	m.flushCandidates()

	return nil
}

// AddCandidate применяет кандидата или ставит в очередь до remote description
func (m *Manager) AddCandidate(c webrtc.ICECandidateInit) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	if !m.remoteSet {
		m.pending = append(m.pending, c)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}

	return nil
}

// Pending - число кандидатов, ждущих remote description
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.pending)
}

func (m *Manager) RemoteTracks() []*RemoteTrack {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*RemoteTrack(nil), m.remotes...)
}

func (m *Manager) State() webrtc.PeerConnectionState {
	return m.pc.ConnectionState()
}

// Close идемпотентен
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.pending = nil
	m.mu.Unlock()

	if err := m.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}

	return nil
}

// flushCandidates применяет очередь в порядке прихода. Битый кандидат не мешает остальным
func (m *Manager) flushCandidates() {
	m.mu.Lock()
	m.remoteSet = true
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, c := range pending {
		if err := m.pc.AddICECandidate(c); err != nil {
			slog.Warn("add queued ICE candidate", slog.Any(constant.Error, err))
		}
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
