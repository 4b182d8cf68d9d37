package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"INFO"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required,notEmpty"`

	// WSSendBuffer - размер очереди исходящих сообщений на одно ws соединение
	WSSendBuffer int `env:"WS_SEND_BUFFER" envDefault:"64"`

	STUNURLs []string `env:"STUN_URLS" envSeparator:"," envDefault:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302"`

	TurnUDPServer webrtc.ICEServer
	TurnTCPServer webrtc.ICEServer

	CoturnServer CoturnConfig
	TurnRelay    TurnRelayConfig
	Postgres     PostgresConfig
}

type PostgresConfig struct {
	Enabled bool   `env:"POSTGRES_ENABLED" envDefault:"true"`
	URL     string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"carecall"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`

	MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxIdleTime time.Duration `env:"POSTGRES_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnectTimeout  time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" envDefault:"10s"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

// NewPostgres читает только настройки БД, migrate не требует JWT_SECRET
func NewPostgres() (*PostgresConfig, error) {
	p, err := env.ParseAs[PostgresConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse postgres env: %w", err)
	}

	return &p, nil
}

type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret - нужен для генерации временных кредов для клиентов
	Secret string `env:"COTURN_SECRET"`

	CredentialTTL time.Duration `env:"COTURN_CREDENTIAL_TTL" envDefault:"1h"`
}

// TurnRelayConfig - встроенный TURN relay вместо внешнего coturn.
// Авторизация по временным кредам с COTURN_SECRET.
type TurnRelayConfig struct {
	Enabled  bool   `env:"TURN_RELAY_ENABLED" envDefault:"false"`
	PublicIP string `env:"TURN_RELAY_PUBLIC_IP" envDefault:"127.0.0.1"`
	Port     int    `env:"TURN_RELAY_PORT" envDefault:"3478"`
	Realm    string `env:"TURN_RELAY_REALM" envDefault:"carecall"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if c.WSSendBuffer <= 0 {
		return nil, fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}

	if c.TurnRelay.Enabled {
		if c.CoturnServer.Secret == "" {
			return nil, fmt.Errorf("TURN_RELAY_ENABLED requires COTURN_SECRET")
		}

		// клиентам отдаём свой relay, если внешний не задан
		if c.CoturnServer.Host == "" {
			c.CoturnServer.Host = fmt.Sprintf("%s:%d", c.TurnRelay.PublicIP, c.TurnRelay.Port)
		}
	}

	// TURN опционален: без хоста отдаём только STUN
	if c.CoturnServer.Host != "" {
		c.TurnUDPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}

		c.TurnTCPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}
	}

	return &c, nil
}

// ICEServers возвращает список ICE серверов со статическими кредами TURN.
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 3)

	if len(c.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNURLs})
	}

	if c.TurnEnabled() {
		servers = append(servers, c.TurnUDPServer, c.TurnTCPServer)
	}

	return servers
}

func (c *Config) TurnEnabled() bool {
	return len(c.TurnUDPServer.URLs) > 0
}
