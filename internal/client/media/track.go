package media

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track - локальный трек. Выключенный трек шлёт тишину или пустой кадр, остановленный отклоняет запись.
type Track struct {
	kind  Kind
	local *webrtc.TrackLocalStaticSample

	// muteFrame уходит вместо полезной нагрузки выключенного трека.
	// pion отдаёт OnTrack удалённой стороне только после первого RTP пакета
	muteFrame []byte

	mu      sync.Mutex
	enabled bool
	ended   bool
	done    chan struct{}
}

func NewTrack(kind Kind, codec webrtc.RTPCodecCapability, id, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}

	muteFrame := silenceFrame
	if kind == KindVideo {
		muteFrame = blankVideoFrame
	}

	return &Track{
		kind:      kind,
		local:     local,
		muteFrame: muteFrame,
		enabled:   true,
		done:      make(chan struct{}),
	}, nil
}

func (t *Track) Kind() Kind {
	return t.kind
}

func (t *Track) ID() string {
	return t.local.ID()
}

// Local отдаёт pion трек для добавления в peer connection
func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ended {
		return
	}
	t.enabled = enabled
}

// Stop освобождает устройство. Повторный вызов ничего не делает.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ended {
		return
	}

	t.ended = true
	t.enabled = false
	close(t.done)
}

func (t *Track) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.ended
}

func (t *Track) Done() <-chan struct{} {
	return t.done
}

func (t *Track) WriteSample(s pionmedia.Sample) error {
	t.mu.Lock()
	ended, enabled := t.ended, t.enabled
	t.mu.Unlock()

	if ended {
		return ErrTrackEnded
	}

	return t.local.WriteSample(t.outgoing(s, enabled))
}

// outgoing подменяет нагрузку выключенного трека, длительность сохраняется
func (t *Track) outgoing(s pionmedia.Sample, enabled bool) pionmedia.Sample {
	if enabled {
		return s
	}

	s.Data = t.muteFrame

	return s
}

// Stream - набор локальных треков одного захвата
type Stream struct {
	ID     string
	tracks []*Track
}

func NewStream(id string, tracks ...*Track) *Stream {
	return &Stream{ID: id, tracks: tracks}
}

func (s *Stream) Tracks() []*Track {
	return append([]*Track(nil), s.tracks...)
}

func (s *Stream) Track(kind Kind) *Track {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}

	return nil
}

func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Ended - true, когда все треки остановлены
func (s *Stream) Ended() bool {
	for _, t := range s.tracks {
		if !t.Ended() {
			return false
		}
	}

	return true
}
