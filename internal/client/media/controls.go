package media

import "sync"

// Controls - локальные mute/video переключатели. Флаги всегда читаются с треков.
type Controls struct {
	mu     sync.Mutex
	stream *Stream
}

func NewControls() *Controls {
	return &Controls{}
}

func (c *Controls) Attach(stream *Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stream = stream
}

func (c *Controls) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stream = nil
}

// ToggleMute переключает аудио трек и возвращает новое значение muted
func (c *Controls) ToggleMute() bool {
	c.toggle(KindAudio)

	return c.Muted()
}

// ToggleVideo переключает видео трек и возвращает новое значение videoOff
func (c *Controls) ToggleVideo() bool {
	c.toggle(KindVideo)

	return c.VideoOff()
}

func (c *Controls) Muted() bool {
	return !c.enabled(KindAudio)
}

func (c *Controls) VideoOff() bool {
	return !c.enabled(KindVideo)
}

func (c *Controls) toggle(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return
	}

	if t := c.stream.Track(kind); t != nil && !t.Ended() {
		t.SetEnabled(!t.Enabled())
	}
}

// без трека (нет потока, трек остановлен) считаем выключенным
func (c *Controls) enabled(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return false
	}

	t := c.stream.Track(kind)

	return t != nil && t.Enabled()
}
