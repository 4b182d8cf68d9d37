package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ClientConfig - настройки headless клиента звонка.
type ClientConfig struct {
	ServerURL string `env:"CARECALL_SERVER_URL" envDefault:"ws://localhost:3000/api/v1/ws"`
	Token     string `env:"CARECALL_TOKEN"`

	STUNURLs []string `env:"CARECALL_STUN_URLS" envSeparator:"," envDefault:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302"`

	PeerLeaveTimeout time.Duration `env:"CARECALL_PEER_LEAVE_TIMEOUT" envDefault:"5s"`
	MediaTimeout     time.Duration `env:"CARECALL_MEDIA_TIMEOUT" envDefault:"30s"`
}

func NewClient() (*ClientConfig, error) {
	c, err := env.ParseAs[ClientConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &c, nil
}
