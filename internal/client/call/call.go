package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/client/media"
	"github.com/qrave1/CareCall/internal/client/peer"
	"github.com/qrave1/CareCall/internal/domain"
	"github.com/qrave1/CareCall/internal/domain/events"
)

const (
	defaultPeerLeaveTimeout = 5 * time.Second
	defaultMediaTimeout     = 30 * time.Second

	msgMediaFailed      = "Failed to access camera/microphone."
	msgConnectionFailed = "Connection failed. Please try again."
	msgSignalingLost    = "Lost connection to the consultation server."
)

// Signaler - сигнальный транспорт звонка
type Signaler interface {
	Send(msg events.Message) error
	Incoming() <-chan events.Message
	Done() <-chan struct{}
}

// PeerConnection - то, что звонку нужно от peer.Manager
type PeerConnection interface {
	AddTracks(stream *media.Stream) error
	CreateOffer() (string, error)
	AcceptOffer(sdp string) (string, error)
	ApplyAnswer(sdp string) error
	AddCandidate(c webrtc.ICECandidateInit) error
	Close() error
}

type PeerFactory func(iceServers []webrtc.ICEServer, handlers peer.Handlers) (PeerConnection, error)

func DefaultPeerFactory(iceServers []webrtc.ICEServer, handlers peer.Handlers) (PeerConnection, error) {
	m, err := peer.NewManager(iceServers, handlers)
	if err != nil {
		return nil, err
	}

	return m, nil
}

type Config struct {
	RoomID string

	// Role пустая - сервер возьмёт роль из identity
	Role domain.Role

	ICEServers  []webrtc.ICEServer
	Constraints media.Constraints

	PeerLeaveTimeout time.Duration
	MediaTimeout     time.Duration
}

type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventLocalStream  EventKind = "local_stream"
	EventRemoteTrack  EventKind = "remote_track"
	EventError        EventKind = "error"
)

type Event struct {
	Kind   EventKind
	State  State
	Err    error
	Stream *media.Stream
	Track  *peer.RemoteTrack
}

// Listener вызывается из цикла звонка. Вызывать EndCall из него нельзя.
type Listener func(Event)

type Option func(*Call)

func WithPeerFactory(f PeerFactory) Option {
	return func(c *Call) {
		c.newPeer = f
	}
}

func WithListener(l Listener) Option {
	return func(c *Call) {
		c.listener = l
	}
}

type loopEventKind int

const (
	evStart loopEventKind = iota
	evEnd
	evMedia
	evLocalCandidate
	evRemoteTrack
	evPeerState
	evPeerLeaveTimeout
)

type loopEvent struct {
	kind loopEventKind
	gen  int

	ctx       context.Context
	stream    *media.Stream
	err       error
	candidate webrtc.ICECandidateInit
	track     *peer.RemoteTrack
	peerState webrtc.PeerConnectionState
}

// Call - клиентская машина состояний звонка 1:1. Все переходы выполняет один цикл.
type Call struct {
	cfg      Config
	sig      Signaler
	source   media.Source
	newPeer  PeerFactory
	listener Listener
	controls *media.Controls

	inbox   *inbox
	stopped chan struct{}
	started atomic.Bool

	mu           sync.RWMutex
	state        State
	err          error
	role         domain.Role
	sessionID    uuid.UUID
	stream       *media.Stream
	remoteTracks []*peer.RemoteTrack

	// дальше только из цикла
	pc              PeerConnection
	gen             int
	iceServers      []webrtc.ICEServer
	candidates      []webrtc.ICECandidateInit
	heldOffer       string
	answerApplied   bool
	transportClosed bool
	cancelMedia     context.CancelFunc
	leaveTimer      *time.Timer
}

func New(cfg Config, sig Signaler, source media.Source, opts ...Option) (*Call, error) {
	if sig == nil || source == nil {
		return nil, fmt.Errorf("new call: signaler and media source are required")
	}

	if err := domain.ValidateRoomID(cfg.RoomID); err != nil {
		return nil, fmt.Errorf("new call: %w", err)
	}

	if cfg.Role != "" && !cfg.Role.Valid() {
		return nil, fmt.Errorf("new call: %w: %q", domain.ErrInvalidRole, cfg.Role)
	}

	if cfg.PeerLeaveTimeout <= 0 {
		cfg.PeerLeaveTimeout = defaultPeerLeaveTimeout
	}

	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = defaultMediaTimeout
	}

	if !cfg.Constraints.Audio && !cfg.Constraints.Video {
		cfg.Constraints = media.Constraints{Audio: true, Video: true}
	}

	c := &Call{
		cfg:        cfg,
		sig:        sig,
		source:     source,
		newPeer:    DefaultPeerFactory,
		controls:   media.NewControls(),
		inbox:      newInbox(),
		stopped:    make(chan struct{}),
		state:      StateIdle,
		role:       cfg.Role,
		iceServers: cfg.ICEServers,
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.run()

	return c, nil
}

// StartCall запускает захват медиа. Результат приходит событиями.
func (c *Call) StartCall(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrNotIdle
	}

	if c.State() != StateIdle {
		return ErrNotIdle
	}

	if !c.inbox.push(loopEvent{kind: evStart, ctx: ctx}) {
		return ErrNotIdle
	}

	return nil
}

// EndCall возвращается после остановки треков и закрытия peer connection.
// leave-room уходит асинхронно.
func (c *Call) EndCall() {
	c.inbox.push(loopEvent{kind: evEnd})

	<-c.stopped
}

// ToggleMute только локально, без сигналинга. Возвращает новое значение Muted.
func (c *Call) ToggleMute() bool {
	return c.controls.ToggleMute()
}

func (c *Call) ToggleVideo() bool {
	return c.controls.ToggleVideo()
}

func (c *Call) Muted() bool {
	return c.controls.Muted()
}

func (c *Call) VideoOff() bool {
	return c.controls.VideoOff()
}

func (c *Call) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

func (c *Call) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.err
}

func (c *Call) Role() domain.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.role
}

func (c *Call) SessionID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.sessionID
}

func (c *Call) LocalStream() *media.Stream {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stream
}

func (c *Call) RemoteTracks() []*peer.RemoteTrack {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]*peer.RemoteTrack(nil), c.remoteTracks...)
}

// Done закрывается, когда звонок в терминальном состоянии и ресурсы освобождены
func (c *Call) Done() <-chan struct{} {
	return c.stopped
}

func (c *Call) run() {
	defer close(c.stopped)

	incoming := c.sig.Incoming()
	transportDone := c.sig.Done()

	for !c.State().Terminal() {
		select {
		case <-c.inbox.notify:
			for _, ev := range c.inbox.drain() {
				if c.State().Terminal() {
					c.discard(ev)
					continue
				}
				c.dispatch(ev)
			}

		case msg, ok := <-incoming:
			if !ok {
				incoming = nil
				c.onTransportClosed()
				continue
			}
			c.onSignal(msg)

		case <-transportDone:
			transportDone = nil
			c.onTransportClosed()
		}
	}

	for _, ev := range c.inbox.close() {
		c.discard(ev)
	}
}

func (c *Call) dispatch(ev loopEvent) {
	switch ev.kind {
	case evStart:
		c.onStart(ev.ctx)
	case evEnd:
		c.terminate(StateEnded, nil)
	case evMedia:
		c.onMedia(ev.stream, ev.err)
	case evLocalCandidate:
		c.onLocalCandidate(ev)
	case evRemoteTrack:
		c.onRemoteTrack(ev)
	case evPeerState:
		c.onPeerState(ev)
	case evPeerLeaveTimeout:
		if ev.gen == c.gen && c.State() == StateConnected {
			slog.Info("peer did not come back, ending call", slog.String(constant.RoomID, c.cfg.RoomID))
			c.terminate(StateEnded, nil)
		}
	}
}

// discard освобождает то, что пришло после завершения звонка
func (c *Call) discard(ev loopEvent) {
	if ev.kind == evMedia && ev.stream != nil {
		ev.stream.Stop()
	}
}

func (c *Call) onStart(ctx context.Context) {
	if c.State() != StateIdle {
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	mediaCtx, cancel := context.WithTimeout(ctx, c.cfg.MediaTimeout)
	c.cancelMedia = cancel

	c.setState(StateAcquiringMedia)

	go func() {
		stream, err := c.source.Acquire(mediaCtx, c.cfg.Constraints)
		if !c.inbox.push(loopEvent{kind: evMedia, stream: stream, err: err}) && stream != nil {
			stream.Stop()
		}
	}()
}

func (c *Call) onMedia(stream *media.Stream, err error) {
	if c.cancelMedia != nil {
		c.cancelMedia()
		c.cancelMedia = nil
	}

	if c.State() != StateAcquiringMedia {
		if stream != nil {
			stream.Stop()
		}
		return
	}

	if err != nil {
		c.terminate(StateFailed, newError(KindMediaAccess, "acquire media", err, media.UserMessage(err)))
		return
	}

	if stream == nil {
		c.terminate(StateFailed, newError(KindMediaAccess, "acquire media", media.ErrDeviceNotFound, msgMediaFailed))
		return
	}

	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()

	c.controls.Attach(stream)
	c.emit(Event{Kind: EventLocalStream, State: c.State(), Stream: stream})

	msg, err := events.New(events.TypeJoinRoom, c.cfg.RoomID, events.JoinPayload{Role: c.cfg.Role})
	if err != nil {
		c.terminate(StateFailed, newError(KindSignaling, "join room", err, msgSignalingLost))
		return
	}

	if err = c.sig.Send(msg); err != nil {
		c.terminate(StateFailed, newError(KindSignaling, "join room", err, msgSignalingLost))
		return
	}

	c.setState(StateJoining)
}

func (c *Call) onSignal(msg events.Message) {
	state := c.State()

	if msg.Type != events.TypeError && msg.RoomID != c.cfg.RoomID {
		slog.Warn(
			"drop signaling message for another room",
			slog.String(constant.Type, string(msg.Type)),
			slog.String(constant.RoomID, msg.RoomID),
		)
		return
	}

	// до join-room комната о нас не знает
	if !state.joined() {
		slog.Debug("drop signaling message before join", slog.String(constant.Type, string(msg.Type)))
		return
	}

	switch msg.Type {
	case events.TypeJoined:
		c.onJoined(msg)
	case events.TypeUserJoined:
		c.onUserJoined()
	case events.TypeOffer:
		c.onOffer(msg)
	case events.TypeAnswer:
		c.onAnswer(msg)
	case events.TypeIceCandidate:
		c.onRemoteCandidate(msg)
	case events.TypeUserLeft:
		c.onUserLeft()
	case events.TypeError:
		c.onServerError(msg)
	default:
		slog.Debug("ignore signaling message", slog.String(constant.Type, string(msg.Type)))
	}
}

func (c *Call) onJoined(msg events.Message) {
	if c.State() != StateJoining {
		return
	}

	var payload events.JoinedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		c.signalingError("joined", err)
		return
	}

	c.mu.Lock()
	c.sessionID = payload.SessionID
	if payload.Role.Valid() {
		c.role = payload.Role
	}
	c.mu.Unlock()

	if len(payload.ICEServers) > 0 {
		c.iceServers = payload.ICEServers
	}

	slog.Info(
		"joined consultation",
		slog.String(constant.RoomID, c.cfg.RoomID),
		slog.Any(constant.SessionID, payload.SessionID),
		slog.String(constant.Role, c.Role().String()),
	)

	c.setState(StateAwaitingPeer)

	switch {
	case c.Role() == domain.RoleInitiator && len(payload.Peers) > 0:
		c.startOffer()
	case c.Role() == domain.RoleResponder && c.heldOffer != "":
		sdp := c.heldOffer
		c.heldOffer = ""
		c.acceptOffer(sdp)
	}
}

func (c *Call) onUserJoined() {
	if c.State() != StateAwaitingPeer {
		return
	}

	if c.Role() == domain.RoleInitiator {
		c.startOffer()
	}
}

func (c *Call) onOffer(msg events.Message) {
	sdp, err := msg.SDP()
	if err != nil {
		c.signalingError("offer", err)
		return
	}

	switch c.State() {
	case StateJoining:
		if c.heldOffer == "" {
			c.heldOffer = sdp
		}
	case StateAwaitingPeer:
		if c.Role() != domain.RoleResponder {
			slog.Warn("initiator ignores offer", slog.String(constant.RoomID, c.cfg.RoomID))
			return
		}
		c.acceptOffer(sdp)
	default:
		slog.Debug("ignore duplicate offer", slog.String(constant.State, c.State().String()))
	}
}

func (c *Call) onAnswer(msg events.Message) {
	if c.Role() != domain.RoleInitiator || c.State() != StateNegotiating || c.answerApplied {
		slog.Debug("ignore answer", slog.String(constant.State, c.State().String()))
		return
	}

	sdp, err := msg.SDP()
	if err != nil {
		c.signalingError("answer", err)
		return
	}

	if err = c.pc.ApplyAnswer(sdp); err != nil {
		c.terminate(StateFailed, newError(KindPeerConnection, "apply answer", err, msgConnectionFailed))
		return
	}

	c.answerApplied = true
}

func (c *Call) onRemoteCandidate(msg events.Message) {
	candidate, err := msg.Candidate()
	if err != nil {
		c.signalingError("ice-candidate", err)
		return
	}

	if c.pc == nil {
		c.candidates = append(c.candidates, candidate)
		return
	}

	if err = c.pc.AddCandidate(candidate); err != nil {
		c.signalingError("ice-candidate", err)
	}
}

func (c *Call) onUserLeft() {
	switch c.State() {
	case StateNegotiating:
		slog.Info("peer left during negotiation", slog.String(constant.RoomID, c.cfg.RoomID))
		c.resetPeer()
		c.setState(StateAwaitingPeer)
	case StateConnected:
		slog.Info("peer left the consultation", slog.String(constant.RoomID, c.cfg.RoomID))
		c.terminate(StateEnded, nil)
	case StateAwaitingPeer:
		// кандидаты ушедшего собеседника не применяем к следующему
		c.candidates = nil
		c.heldOffer = ""
	}
}

func (c *Call) onServerError(msg events.Message) {
	var payload events.ErrorPayload
	if err := msg.DecodePayload(&payload); err != nil {
		c.signalingError("error", err)
		return
	}

	if c.State() == StateJoining && domain.IsJoinRejection(payload.Code) {
		c.terminate(
			StateFailed,
			newError(KindJoinRejected, "join room", fmt.Errorf("%w: %s", ErrJoinRejected, payload.Code), ErrJoinRejected.Error()),
		)
		return
	}

	c.signalingError("server", fmt.Errorf("%s: %s", payload.Code, payload.Message))
}

func (c *Call) onTransportClosed() {
	c.transportClosed = true

	if c.State() == StateConnected {
		c.terminate(StateEnded, nil)
		return
	}

	c.terminate(StateFailed, newError(KindSignaling, "signaling transport", ErrTransportGone, msgSignalingLost))
}

func (c *Call) onLocalCandidate(ev loopEvent) {
	if ev.gen != c.gen || c.pc == nil {
		return
	}

	msg, err := events.New(events.TypeIceCandidate, c.cfg.RoomID, events.IceCandidatePayload{Candidate: ev.candidate})
	if err != nil {
		slog.Error("build ice-candidate", slog.Any(constant.Error, err))
		return
	}

	if err = c.sig.Send(msg); err != nil {
		slog.Warn("send ice-candidate", slog.Any(constant.Error, err))
	}
}

func (c *Call) onRemoteTrack(ev loopEvent) {
	if ev.gen != c.gen || ev.track == nil {
		return
	}

	c.mu.Lock()
	c.remoteTracks = append(c.remoteTracks, ev.track)
	c.mu.Unlock()

	c.emit(Event{Kind: EventRemoteTrack, State: c.State(), Track: ev.track})

	if c.State() == StateNegotiating {
		c.setState(StateConnected)
	}
}

func (c *Call) onPeerState(ev loopEvent) {
	if ev.gen != c.gen {
		return
	}

	slog.Debug("peer connection state", slog.String(constant.State, ev.peerState.String()))

	switch ev.peerState {
	case webrtc.PeerConnectionStateConnected:
		c.stopLeaveTimer()

		// медиа может ещё не пойти, если собеседник выключил треки до соединения
		if c.State() == StateNegotiating {
			c.setState(StateConnected)
		}

	case webrtc.PeerConnectionStateDisconnected:
		if c.State() == StateConnected && c.leaveTimer == nil {
			gen := c.gen
			c.leaveTimer = time.AfterFunc(c.cfg.PeerLeaveTimeout, func() {
				c.inbox.push(loopEvent{kind: evPeerLeaveTimeout, gen: gen})
			})
		}

	case webrtc.PeerConnectionStateFailed:
		c.terminate(StateFailed, newError(KindPeerConnection, "peer connection", ErrPeerFailed, msgConnectionFailed))

	case webrtc.PeerConnectionStateClosed:
		if c.State() == StateConnected {
			c.terminate(StateEnded, nil)
			return
		}
		c.terminate(StateFailed, newError(KindPeerConnection, "peer connection", ErrPeerFailed, msgConnectionFailed))
	}
}

// startOffer - только Initiator, ровно один offer на появление собеседника
func (c *Call) startOffer() {
	if err := c.createPeer(); err != nil {
		c.terminate(StateFailed, newError(KindPeerConnection, "create peer connection", err, msgConnectionFailed))
		return
	}

	sdp, err := c.pc.CreateOffer()
	if err != nil {
		c.terminate(StateFailed, newError(KindPeerConnection, "create offer", err, msgConnectionFailed))
		return
	}

	if err = c.sendSDP(events.TypeOffer, sdp); err != nil {
		c.terminate(StateFailed, newError(KindSignaling, "send offer", err, msgSignalingLost))
		return
	}

	c.setState(StateNegotiating)
}

func (c *Call) acceptOffer(sdp string) {
	if err := c.createPeer(); err != nil {
		c.terminate(StateFailed, newError(KindPeerConnection, "create peer connection", err, msgConnectionFailed))
		return
	}

	answer, err := c.pc.AcceptOffer(sdp)
	if err != nil {
		c.terminate(StateFailed, newError(KindPeerConnection, "accept offer", err, msgConnectionFailed))
		return
	}

	if err = c.sendSDP(events.TypeAnswer, answer); err != nil {
		c.terminate(StateFailed, newError(KindSignaling, "send answer", err, msgSignalingLost))
		return
	}

	c.setState(StateNegotiating)
}

func (c *Call) sendSDP(t events.Type, sdp string) error {
	msg, err := events.New(t, c.cfg.RoomID, events.SdpPayload{SDP: sdp})
	if err != nil {
		return err
	}

	return c.sig.Send(msg)
}

func (c *Call) createPeer() error {
	c.gen++
	gen := c.gen

	pc, err := c.newPeer(c.iceServers, peer.Handlers{
		OnLocalCandidate: func(candidate webrtc.ICECandidateInit) {
			c.inbox.push(loopEvent{kind: evLocalCandidate, gen: gen, candidate: candidate})
		},
		OnRemoteTrack: func(track *peer.RemoteTrack) {
			c.inbox.push(loopEvent{kind: evRemoteTrack, gen: gen, track: track})
		},
		OnStateChange: func(state webrtc.PeerConnectionState) {
			c.inbox.push(loopEvent{kind: evPeerState, gen: gen, peerState: state})
		},
	})
	if err != nil {
		return err
	}

	c.pc = pc

	if err = pc.AddTracks(c.LocalStream()); err != nil {
		return err
	}

	// буфер до создания pc: применяем в порядке прихода, pc сам ждёт remote description
	candidates := c.candidates
	c.candidates = nil

	for _, candidate := range candidates {
		if err = pc.AddCandidate(candidate); err != nil {
			c.signalingError("buffered ice-candidate", err)
		}
	}

	return nil
}

// resetPeer выбрасывает pc, медиа остаётся
func (c *Call) resetPeer() {
	c.stopLeaveTimer()

	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			slog.Warn("close peer connection", slog.Any(constant.Error, err))
		}
		c.pc = nil
	}

	c.gen++
	c.candidates = nil
	c.heldOffer = ""
	c.answerApplied = false

	c.mu.Lock()
	c.remoteTracks = nil
	c.mu.Unlock()
}

// terminate синхронно освобождает медиа и pc и переводит звонок в Ended/Failed
func (c *Call) terminate(state State, callErr *Error) {
	prev := c.State()
	if prev.Terminal() {
		return
	}

	// комната о нас знает, пока нет отказа на вход
	if prev.joined() && !c.transportClosed && (callErr == nil || callErr.Kind != KindJoinRejected) {
		if msg, err := events.New(events.TypeLeaveRoom, c.cfg.RoomID, nil); err == nil {
			if err = c.sig.Send(msg); err != nil {
				slog.Debug("send leave-room", slog.Any(constant.Error, err))
			}
		}
	}

	if c.cancelMedia != nil {
		c.cancelMedia()
		c.cancelMedia = nil
	}

	c.resetPeer()

	if stream := c.LocalStream(); stream != nil {
		stream.Stop()
	}

	c.mu.Lock()
	c.state = state
	if callErr != nil {
		c.err = callErr
	}
	c.mu.Unlock()

	attrs := []any{
		slog.String(constant.RoomID, c.cfg.RoomID),
		slog.String(constant.State, state.String()),
	}

	if callErr != nil {
		slog.Warn("call failed", append(attrs, slog.Any(constant.Error, callErr))...)
		c.emit(Event{Kind: EventError, State: state, Err: callErr})
	} else {
		slog.Info("call ended", attrs...)
	}

	c.emit(Event{Kind: EventStateChanged, State: state})
}

func (c *Call) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	slog.Debug("call state", slog.String(constant.State, state.String()), slog.String(constant.RoomID, c.cfg.RoomID))

	c.emit(Event{Kind: EventStateChanged, State: state})
}

// signalingError - сообщение отброшено, звонок продолжается
func (c *Call) signalingError(op string, err error) {
	callErr := newError(KindSignaling, op, err, "")

	c.mu.Lock()
	c.err = callErr
	c.mu.Unlock()

	slog.Warn("signaling message dropped", slog.String("op", op), slog.Any(constant.Error, err))

	c.emit(Event{Kind: EventError, State: c.State(), Err: callErr})
}

func (c *Call) stopLeaveTimer() {
	if c.leaveTimer != nil {
		c.leaveTimer.Stop()
		c.leaveTimer = nil
	}
}

func (c *Call) emit(ev Event) {
	if c.listener != nil {
		c.listener(ev)
	}
}
