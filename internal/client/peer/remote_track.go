package peer

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/CareCall/internal/application/constant"
)

// RemoteTrack - входящий трек собеседника. RTP читается постоянно, иначе встанут interceptors.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     string

	track *webrtc.TrackRemote

	mu       sync.Mutex
	packets  uint64
	bytes    uint64
	lastSeq  uint16
	lastSSRC uint32

	done chan struct{}
}

func newRemoteTrack(track *webrtc.TrackRemote) *RemoteTrack {
	return &RemoteTrack{
		ID:       track.ID(),
		StreamID: track.StreamID(),
		Kind:     track.Kind().String(),
		track:    track,
		done:     make(chan struct{}),
	}
}

func (r *RemoteTrack) drain() {
	defer close(r.done)

	for {
		pkt, _, err := r.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("remote RTP read stopped", slog.Any(constant.Error, err), slog.String("track", r.ID))
			}

			return
		}

		r.record(pkt)
	}
}

func (r *RemoteTrack) record(pkt *rtp.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.packets++
	r.bytes += uint64(len(pkt.Payload))
	r.lastSeq = pkt.SequenceNumber
	r.lastSSRC = pkt.SSRC
}

type TrackStats struct {
	Packets      uint64
	PayloadBytes uint64
	LastSequence uint16
	SSRC         uint32
}

func (r *RemoteTrack) Stats() TrackStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return TrackStats{
		Packets:      r.packets,
		PayloadBytes: r.bytes,
		LastSequence: r.lastSeq,
		SSRC:         r.lastSSRC,
	}
}

// Done закрывается, когда трек перестал приходить
func (r *RemoteTrack) Done() <-chan struct{} {
	return r.done
}
