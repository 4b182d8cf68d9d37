package usecase

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/CareCall/internal/application/config"
)

func TestTurnCredentials(t *testing.T) {
	expiresAt := time.Unix(1760000000, 0)

	username, password := TurnCredentials("s3cret", expiresAt)
	assert.Equal(t, strconv.FormatInt(expiresAt.Unix(), 10), username)

	mac := hmac.New(sha1.New, []byte("s3cret"))
	mac.Write([]byte(username))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), password)
}

func TestIceServers(t *testing.T) {
	stun := []string{"stun:stun.l.google.com:19302"}
	turnUDP := webrtc.ICEServer{URLs: []string{"turn:turn.example.org?transport=udp"}, Username: "u", Credential: "p"}
	turnTCP := webrtc.ICEServer{URLs: []string{"turn:turn.example.org?transport=tcp"}, Username: "u", Credential: "p"}

	t.Run("stun only", func(t *testing.T) {
		servers := NewIceUsecase(&config.Config{STUNURLs: stun}).ICEServers(time.Now())

		require.Len(t, servers, 1)
		assert.Equal(t, stun, servers[0].URLs)
	})

	t.Run("static turn credentials", func(t *testing.T) {
		cfg := &config.Config{STUNURLs: stun, TurnUDPServer: turnUDP, TurnTCPServer: turnTCP}

		servers := NewIceUsecase(cfg).ICEServers(time.Now())

		require.Len(t, servers, 3)
		assert.Equal(t, turnUDP, servers[1])
		assert.Equal(t, turnTCP, servers[2])
	})

	t.Run("temporary turn credentials", func(t *testing.T) {
		cfg := &config.Config{
			STUNURLs:      stun,
			TurnUDPServer: turnUDP,
			TurnTCPServer: turnTCP,
			CoturnServer:  config.CoturnConfig{Secret: "s3cret", CredentialTTL: time.Hour},
		}
		now := time.Unix(1760000000, 0)

		servers := NewIceUsecase(cfg).ICEServers(now)

		require.Len(t, servers, 2)
		turn := servers[1]
		assert.Equal(t, []string{turnUDP.URLs[0], turnTCP.URLs[0]}, turn.URLs)

		username, password := TurnCredentials("s3cret", now.Add(time.Hour))
		assert.Equal(t, username, turn.Username)
		assert.Equal(t, password, turn.Credential)
	})
}
