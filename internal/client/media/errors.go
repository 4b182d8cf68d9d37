package media

import "errors"

var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrDeviceNotFound   = errors.New("media device not found")
	ErrDeviceBusy       = errors.New("media device busy")
	ErrTrackEnded       = errors.New("track ended")
)

// UserMessage возвращает текст ошибки захвата медиа для показа пользователю
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera/microphone access denied. Please allow permissions and try again."
	case errors.Is(err, ErrDeviceNotFound):
		return "No camera or microphone found. Please connect a device."
	case errors.Is(err, ErrDeviceBusy):
		return "Camera/microphone is already in use by another application."
	default:
		return "Failed to access camera/microphone."
	}
}
