package turn

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/pion/logging"
	pionturn "github.com/pion/turn/v4"

	"github.com/qrave1/CareCall/internal/application/config"
	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/application/metric"
)

// Relay - встроенный TURN сервер, UDP и TCP на одном порту
type Relay struct {
	server *pionturn.Server
	addr   string
}

// NewRelay принимает те же временные креды, что отдаёт /api/v1/ice:
// username = unix время истечения, password = base64(HMAC-SHA1(secret, username)).
func NewRelay(cfg config.TurnRelayConfig, secret string) (*Relay, error) {
	publicIP := net.ParseIP(cfg.PublicIP)
	if publicIP == nil {
		return nil, fmt.Errorf("parse relay public ip %q", cfg.PublicIP)
	}

	udpConn, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("udp listen: %w", err)
	}

	// Port=0: TCP берёт порт, который выбрал UDP
	port := udpConn.LocalAddr().(*net.UDPAddr).Port

	tcpListener, err := net.Listen("tcp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		_ = udpConn.Close()
		return nil, fmt.Errorf("tcp listen: %w", err)
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = logging.LogLevelWarn

	auth := pionturn.NewLongTermAuthHandler(secret, loggerFactory.NewLogger("turn-auth"))

	relayAddressGenerator := &pionturn.RelayAddressGeneratorStatic{
		RelayAddress: publicIP,
		Address:      "0.0.0.0",
	}

	server, err := pionturn.NewServer(
		pionturn.ServerConfig{
			Realm: cfg.Realm,
			AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
				key, ok := auth(username, realm, srcAddr)
				if !ok {
					metric.RecordTurnAuthFailure()
				}

				return key, ok
			},
			PacketConnConfigs: []pionturn.PacketConnConfig{
				{
					PacketConn:            udpConn,
					RelayAddressGenerator: relayAddressGenerator,
				},
			},
			ListenerConfigs: []pionturn.ListenerConfig{
				{
					Listener:              tcpListener,
					RelayAddressGenerator: relayAddressGenerator,
				},
			},
			EventHandler: pionturn.EventHandler{
				OnAllocationCreated: func(srcAddr, _ net.Addr, protocol, _, _ string, relayAddr net.Addr, _ int) {
					metric.IncrementTurnAllocations()
					slog.Debug(
						"turn allocation created",
						slog.String(constant.Remote, srcAddr.String()),
						slog.String("protocol", protocol),
						slog.String("relay", relayAddr.String()),
					)
				},
				OnAllocationDeleted: func(srcAddr, _ net.Addr, protocol, _, _ string) {
					metric.DecrementTurnAllocations()
					slog.Debug(
						"turn allocation deleted",
						slog.String(constant.Remote, srcAddr.String()),
						slog.String("protocol", protocol),
					)
				},
			},
			LoggerFactory: loggerFactory,
		},
	)
	if err != nil {
		_ = udpConn.Close()
		_ = tcpListener.Close()
		return nil, fmt.Errorf("new turn server: %w", err)
	}

	addr := net.JoinHostPort(cfg.PublicIP, strconv.Itoa(port))

	slog.Info("TURN relay started", slog.String("addr", addr), slog.String("realm", cfg.Realm))

	return &Relay{server: server, addr: addr}, nil
}

// Addr - адрес, который видят клиенты
func (r *Relay) Addr() string {
	return r.addr
}

func (r *Relay) Close() error {
	return r.server.Close()
}
