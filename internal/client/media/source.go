package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

type Constraints struct {
	Audio bool
	Video bool
}

// Source - абстракция устройств захвата
type Source interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = time.Second / 30
)

var (
	// Opus тишина
	silenceFrame = []byte{0xf8, 0xff, 0xfe}

	// keyframe заглушка не декодируется, но держит RTP поток живым
	blankVideoFrame = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
)

// SyntheticSource генерирует тишину и пустые кадры для headless клиента
type SyntheticSource struct{}

func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{}
}

func (s *SyntheticSource) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("acquire: %w: no audio or video requested", ErrDeviceNotFound)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}

	streamID := uuid.NewString()
	tracks := make([]*Track, 0, 2)

	if c.Audio {
		t, err := NewTrack(
			KindAudio,
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio-"+streamID,
			streamID,
		)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
		go generate(t, silenceFrame, audioFrame)
	}

	if c.Video {
		t, err := NewTrack(
			KindVideo,
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video-"+streamID,
			streamID,
		)
		if err != nil {
			NewStream(streamID, tracks...).Stop()
			return nil, err
		}
		tracks = append(tracks, t)
		go generate(t, blankVideoFrame, videoFrame)
	}

	return NewStream(streamID, tracks...), nil
}

func generate(t *Track, frame []byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Done():
			return
		case <-ticker.C:
			if err := t.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
				return
			}
		}
	}
}
