package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/CareCall/internal/domain"
)

// Type - тип сигнального сообщения
type Type string

const (
	TypeJoinRoom     Type = "join-room"
	TypeJoined       Type = "joined"
	TypeUserJoined   Type = "user-joined"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeIceCandidate Type = "ice-candidate"
	TypeLeaveRoom    Type = "leave-room"
	TypeUserLeft     Type = "user-left"
	TypeError        Type = "error"
)

func (t Type) Known() bool {
	switch t {
	case TypeJoinRoom, TypeJoined, TypeUserJoined, TypeOffer, TypeAnswer,
		TypeIceCandidate, TypeLeaveRoom, TypeUserLeft, TypeError:
		return true
	default:
		return false
	}
}

// Message - общее событие, формат на проводе {type, roomId, payload}
type Message struct {
	Type    Type            `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload - заявка на вход в комнату. Пустая роль - берём из identity
type JoinPayload struct {
	Role domain.Role `json:"role,omitempty"`
}

type PeerInfo struct {
	SessionID uuid.UUID   `json:"sessionId"`
	Role      domain.Role `json:"role"`
}

// JoinedPayload - подтверждение входа для присоединившегося
type JoinedPayload struct {
	SessionID  uuid.UUID          `json:"sessionId"`
	Role       domain.Role        `json:"role"`
	Peers      []PeerInfo         `json:"peers"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

// SdpPayload - offer или answer
type SdpPayload struct {
	SDP string `json:"sdp"`
}

type IceCandidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type ErrorPayload struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// New собирает сообщение, payload может быть nil
func New(t Type, roomID string, payload any) (Message, error) {
	msg := Message{Type: t, RoomID: roomID}

	if payload == nil {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}

	msg.Payload = data

	return msg, nil
}

func NewError(roomID string, code domain.ErrorCode, text string) Message {
	data, _ := json.Marshal(ErrorPayload{Code: code, Message: text})

	return Message{Type: TypeError, RoomID: roomID, Payload: data}
}

// Decode разбирает сообщение и проверяет обязательные поля
func Decode(raw []byte) (Message, error) {
	var msg Message

	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	if !msg.Type.Known() {
		return Message{}, fmt.Errorf("%w: unknown type %q", domain.ErrMalformedMessage, msg.Type)
	}

	if msg.Type != TypeError && msg.RoomID == "" {
		return Message{}, fmt.Errorf("%w: %s without roomId", domain.ErrMalformedMessage, msg.Type)
	}

	return msg, nil
}

// DecodePayload разбирает payload в v. Пустой payload оставляет v нетронутым
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}

	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", domain.ErrMalformedMessage, m.Type, err)
	}

	return nil
}

// SDP достаёт описание сессии из offer/answer
func (m Message) SDP() (string, error) {
	var p SdpPayload

	if err := m.DecodePayload(&p); err != nil {
		return "", err
	}

	if p.SDP == "" {
		return "", fmt.Errorf("%w: %s without sdp", domain.ErrMalformedMessage, m.Type)
	}

	return p.SDP, nil
}

func (m Message) Candidate() (webrtc.ICECandidateInit, error) {
	var p IceCandidatePayload

	if err := m.DecodePayload(&p); err != nil {
		return webrtc.ICECandidateInit{}, err
	}

	if p.Candidate.Candidate == "" {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: empty ice candidate", domain.ErrMalformedMessage)
	}

	return p.Candidate, nil
}
