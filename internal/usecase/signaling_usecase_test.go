package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/CareCall/internal/application/config"
	"github.com/qrave1/CareCall/internal/domain"
	"github.com/qrave1/CareCall/internal/domain/events"
	"github.com/qrave1/CareCall/internal/domain/models"
	"github.com/qrave1/CareCall/internal/infra/adapters/memory"
	"github.com/qrave1/CareCall/internal/infra/appctx"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[uuid.UUID][]events.Message
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[uuid.UUID][]events.Message)}
}

func (f *fakeNotifier) Write(sessionID uuid.UUID, msg events.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent[sessionID] = append(f.sent[sessionID], msg)

	return true
}

func (f *fakeNotifier) messages(sessionID uuid.UUID) []events.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]events.Message(nil), f.sent[sessionID]...)
}

func (f *fakeNotifier) last(t *testing.T, sessionID uuid.UUID) events.Message {
	t.Helper()

	msgs := f.messages(sessionID)
	require.NotEmpty(t, msgs)

	return msgs[len(msgs)-1]
}

type fakeHistory struct {
	mu     sync.Mutex
	opened []*models.CallSession
	closed map[uuid.UUID]models.EndReason
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{closed: make(map[uuid.UUID]models.EndReason)}
}

func (f *fakeHistory) Open(_ context.Context, s *models.CallSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, s)

	return nil
}

func (f *fakeHistory) Close(_ context.Context, sessionID uuid.UUID, reason models.EndReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed[sessionID] = reason

	return nil
}

func (f *fakeHistory) CloseAll(context.Context, models.EndReason) (int64, error) {
	return 0, nil
}

func (f *fakeHistory) ListByRoom(context.Context, string, int) ([]*models.CallSession, error) {
	return nil, nil
}

type signalingFixture struct {
	usecase  SignalingUsecase
	registry memory.RoomRegistry
	notifier *fakeNotifier
	history  *fakeHistory
}

func newSignalingFixture() *signalingFixture {
	notifier := newFakeNotifier()
	registry := memory.NewRoomRegistry(notifier)
	history := newFakeHistory()
	ice := NewIceUsecase(&config.Config{STUNURLs: []string{"stun:stun.l.google.com:19302"}})

	return &signalingFixture{
		usecase:  NewSignalingUsecase(registry, notifier, history, ice),
		registry: registry,
		notifier: notifier,
		history:  history,
	}
}

func frame(t *testing.T, typ events.Type, roomID string, payload any) []byte {
	t.Helper()

	msg, err := events.New(typ, roomID, payload)
	require.NoError(t, err)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	return raw
}

func identityCtx(role string) context.Context {
	return appctx.WithIdentity(context.Background(), appctx.Identity{UserID: uuid.NewString(), Role: role})
}

func errorCode(t *testing.T, msg events.Message) domain.ErrorCode {
	t.Helper()

	require.Equal(t, events.TypeError, msg.Type)

	var payload events.ErrorPayload
	require.NoError(t, msg.DecodePayload(&payload))

	return payload.Code
}

// join сажает в комнату R1 инициатора и отвечающего
func (f *signalingFixture) join(t *testing.T) (uuid.UUID, uuid.UUID) {
	t.Helper()

	initiator, responder := uuid.New(), uuid.New()

	require.NoError(t, f.usecase.Dispatch(identityCtx("doctor"), initiator, frame(t, events.TypeJoinRoom, "R1", nil)))
	require.NoError(t, f.usecase.Dispatch(identityCtx("patient"), responder, frame(t, events.TypeJoinRoom, "R1", nil)))

	return initiator, responder
}

func TestSignaling_JoinAck(t *testing.T) {
	f := newSignalingFixture()

	initiator, responder := f.join(t)

	ack := f.notifier.messages(initiator)[0]
	require.Equal(t, events.TypeJoined, ack.Type)

	var payload events.JoinedPayload
	require.NoError(t, ack.DecodePayload(&payload))
	assert.Equal(t, initiator, payload.SessionID)
	assert.Equal(t, domain.RoleInitiator, payload.Role)
	assert.Empty(t, payload.Peers)
	require.Len(t, payload.ICEServers, 1)

	respMsgs := f.notifier.messages(responder)
	require.Len(t, respMsgs, 1)
	require.NoError(t, respMsgs[0].DecodePayload(&payload))
	assert.Equal(t, domain.RoleResponder, payload.Role)
	require.Len(t, payload.Peers, 1)
	assert.Equal(t, initiator, payload.Peers[0].SessionID)

	joined := f.notifier.last(t, initiator)
	assert.Equal(t, events.TypeUserJoined, joined.Type)

	assert.Len(t, f.history.opened, 2)
}

func TestSignaling_PayloadRoleOverridesIdentity(t *testing.T) {
	f := newSignalingFixture()

	session := uuid.New()
	raw := frame(t, events.TypeJoinRoom, "R1", events.JoinPayload{Role: domain.RoleInitiator})

	require.NoError(t, f.usecase.Dispatch(identityCtx("patient"), session, raw))

	room, ok := f.registry.Lookup(context.Background(), "R1")
	require.True(t, ok)
	require.Len(t, room.Sessions, 1)
	assert.Equal(t, domain.RoleInitiator, room.Sessions[0].Role)
}

func TestSignaling_JoinRejected(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		identity string
		payload  any
		want     domain.ErrorCode
	}{
		{name: "duplicate initiator", existing: "doctor", identity: "doctor", want: domain.CodeDuplicateInitiator},
		{name: "duplicate responder", existing: "patient", identity: "asha", want: domain.CodeDuplicateResponder},
		{name: "invalid role", identity: "patient", payload: map[string]string{"role": "observer"}, want: domain.CodeInvalidMessage},
		{name: "invalid room", identity: "patient", want: domain.CodeInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSignalingFixture()

			roomID := "R1"
			if tt.name == "invalid room" {
				roomID = "bad room"
			}

			if tt.existing != "" {
				require.NoError(t, f.usecase.Dispatch(identityCtx(tt.existing), uuid.New(), frame(t, events.TypeJoinRoom, roomID, nil)))
			}

			session := uuid.New()
			err := f.usecase.Dispatch(identityCtx(tt.identity), session, frame(t, events.TypeJoinRoom, roomID, tt.payload))
			require.Error(t, err)

			assert.Equal(t, tt.want, errorCode(t, f.notifier.last(t, session)))

			_, joined := f.registry.RoomOf(session)
			assert.False(t, joined)
		})
	}
}

func TestSignaling_RoomFull(t *testing.T) {
	f := newSignalingFixture()
	f.join(t)

	third := uuid.New()
	err := f.usecase.Dispatch(identityCtx("patient"), third, frame(t, events.TypeJoinRoom, "R1", events.JoinPayload{Role: domain.RoleResponder}))
	require.ErrorIs(t, err, domain.ErrRoomFull)

	assert.Equal(t, domain.CodeRoomFull, errorCode(t, f.notifier.last(t, third)))

	room, _ := f.registry.Lookup(context.Background(), "R1")
	assert.Len(t, room.Sessions, 2)
}

func TestSignaling_OfferAnswerRelay(t *testing.T) {
	f := newSignalingFixture()
	ctx := context.Background()

	initiator, responder := f.join(t)

	require.NoError(t, f.usecase.Dispatch(ctx, initiator, frame(t, events.TypeOffer, "R1", events.SdpPayload{SDP: "offer-sdp"})))

	offer := f.notifier.last(t, responder)
	require.Equal(t, events.TypeOffer, offer.Type)
	sdp, err := offer.SDP()
	require.NoError(t, err)
	assert.Equal(t, "offer-sdp", sdp)

	room, _ := f.registry.Lookup(ctx, "R1")
	for _, s := range room.Sessions {
		assert.Equal(t, domain.SessionNegotiating, s.State)
	}

	require.NoError(t, f.usecase.Dispatch(ctx, responder, frame(t, events.TypeAnswer, "R1", events.SdpPayload{SDP: "answer-sdp"})))
	assert.Equal(t, events.TypeAnswer, f.notifier.last(t, initiator).Type)

	room, _ = f.registry.Lookup(ctx, "R1")
	for _, s := range room.Sessions {
		assert.Equal(t, domain.SessionConnected, s.State)
	}

	// второй answer без новой offer
	err = f.usecase.Dispatch(ctx, responder, frame(t, events.TypeAnswer, "R1", events.SdpPayload{SDP: "answer-sdp"}))
	require.ErrorIs(t, err, domain.ErrUnexpectedMessage)
	assert.Equal(t, domain.CodeUnexpectedMessage, errorCode(t, f.notifier.last(t, responder)))
}

func TestSignaling_OfferOnlyFromInitiator(t *testing.T) {
	f := newSignalingFixture()

	initiator, responder := f.join(t)
	before := len(f.notifier.messages(initiator))

	err := f.usecase.Dispatch(context.Background(), responder, frame(t, events.TypeOffer, "R1", events.SdpPayload{SDP: "glare"}))
	require.ErrorIs(t, err, domain.ErrUnexpectedMessage)

	assert.Len(t, f.notifier.messages(initiator), before)
	assert.Equal(t, domain.CodeUnexpectedMessage, errorCode(t, f.notifier.last(t, responder)))
}

func TestSignaling_CandidateWithoutPeerDropped(t *testing.T) {
	f := newSignalingFixture()

	session := uuid.New()
	require.NoError(t, f.usecase.Dispatch(identityCtx("doctor"), session, frame(t, events.TypeJoinRoom, "R1", nil)))

	candidate := map[string]any{"candidate": map[string]any{"candidate": "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"}}
	require.NoError(t, f.usecase.Dispatch(context.Background(), session, frame(t, events.TypeIceCandidate, "R1", candidate)))

	assert.Len(t, f.notifier.messages(session), 1)
}

func TestSignaling_MalformedMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{`},
		{name: "unknown type", raw: `{"type":"dance","roomId":"R1"}`},
		{name: "missing room", raw: `{"type":"offer","payload":{"sdp":"x"}}`},
		{name: "offer without sdp", raw: `{"type":"offer","roomId":"R1","payload":{}}`},
		{name: "server-only type", raw: `{"type":"joined","roomId":"R1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSignalingFixture()
			session := uuid.New()

			require.Error(t, f.usecase.Dispatch(context.Background(), session, []byte(tt.raw)))

			code := errorCode(t, f.notifier.last(t, session))
			assert.Contains(t, []domain.ErrorCode{domain.CodeInvalidMessage, domain.CodeUnexpectedMessage}, code)
		})
	}
}

func TestSignaling_NotInRoomIsSilent(t *testing.T) {
	f := newSignalingFixture()
	session := uuid.New()

	err := f.usecase.Dispatch(context.Background(), session, frame(t, events.TypeOffer, "R1", events.SdpPayload{SDP: "x"}))
	require.ErrorIs(t, err, domain.ErrNotInRoom)

	assert.Empty(t, f.notifier.messages(session))
}

func TestSignaling_LeaveAndDisconnect(t *testing.T) {
	f := newSignalingFixture()
	ctx := context.Background()

	initiator, responder := f.join(t)

	require.NoError(t, f.usecase.Dispatch(ctx, responder, frame(t, events.TypeLeaveRoom, "R1", nil)))
	assert.Equal(t, events.TypeUserLeft, f.notifier.last(t, initiator).Type)
	assert.Equal(t, models.EndReasonLeave, f.history.closed[responder])

	f.usecase.HandleDisconnect(ctx, initiator)
	assert.Equal(t, models.EndReasonDisconnect, f.history.closed[initiator])

	_, ok := f.registry.Lookup(ctx, "R1")
	assert.False(t, ok)

	// повторный disconnect ничего не делает
	f.usecase.HandleDisconnect(ctx, initiator)
}

func TestSignaling_OtherRoomsUnaffected(t *testing.T) {
	f := newSignalingFixture()
	ctx := context.Background()

	initiator, _ := f.join(t)

	other := uuid.New()
	require.NoError(t, f.usecase.Dispatch(identityCtx("doctor"), other, frame(t, events.TypeJoinRoom, "R2", nil)))
	require.Error(t, f.usecase.Dispatch(ctx, other, []byte(`garbage`)))

	room, ok := f.registry.Lookup(ctx, "R1")
	require.True(t, ok)
	assert.Len(t, room.Sessions, 2)

	roomID, ok := f.registry.RoomOf(initiator)
	assert.True(t, ok)
	assert.Equal(t, "R1", roomID)
}

func TestSignaling_RejoinSameSessionOpensNewHistoryRow(t *testing.T) {
	f := newSignalingFixture()
	ctx := identityCtx("doctor")
	session := uuid.New()

	require.NoError(t, f.usecase.Dispatch(ctx, session, frame(t, events.TypeJoinRoom, "R1", nil)))
	require.NoError(t, f.usecase.Dispatch(ctx, session, frame(t, events.TypeLeaveRoom, "R1", nil)))
	assert.Equal(t, models.EndReasonLeave, f.history.closed[session])

	require.NoError(t, f.usecase.Dispatch(ctx, session, frame(t, events.TypeJoinRoom, "R1", nil)))

	require.Len(t, f.history.opened, 2)
	assert.Equal(t, session, f.history.opened[0].SessionID)
	assert.Equal(t, session, f.history.opened[1].SessionID)
	assert.NotEqual(t, f.history.opened[0].ID, f.history.opened[1].ID)
	assert.Equal(t, f.history.opened[0].UserID, f.history.opened[1].UserID)

	room, ok := f.registry.Lookup(context.Background(), "R1")
	require.True(t, ok)
	require.Len(t, room.Sessions, 1)
	assert.Equal(t, session, room.Sessions[0].ID)
}
