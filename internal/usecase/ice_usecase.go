package usecase

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/qrave1/CareCall/internal/application/config"
)

type IceUsecase interface {
	// ICEServers returns STUN servers and, when TURN is configured, TURN servers with credentials
	ICEServers(now time.Time) []webrtc.ICEServer
}

type iceUsecase struct {
	cfg *config.Config
}

func NewIceUsecase(cfg *config.Config) IceUsecase {
	return &iceUsecase{cfg: cfg}
}

func (u *iceUsecase) ICEServers(now time.Time) []webrtc.ICEServer {
	if !u.cfg.TurnEnabled() || u.cfg.CoturnServer.Secret == "" {
		return u.cfg.ICEServers()
	}

	servers := make([]webrtc.ICEServer, 0, 2)
	if len(u.cfg.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: u.cfg.STUNURLs})
	}

	username, password := TurnCredentials(u.cfg.CoturnServer.Secret, now.Add(u.cfg.CoturnServer.CredentialTTL))

	servers = append(servers, webrtc.ICEServer{
		URLs: []string{
			u.cfg.TurnUDPServer.URLs[0],
			u.cfg.TurnTCPServer.URLs[0],
		},
		Username:   username,
		Credential: password,
	})

	return servers
}

// TurnCredentials - временные креды coturn (use-auth-secret): username = expiry, password = base64(HMAC-SHA1(secret, username))
func TurnCredentials(secret string, expiresAt time.Time) (string, string) {
	username := strconv.FormatInt(expiresAt.Unix(), 10)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))

	return username, base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
