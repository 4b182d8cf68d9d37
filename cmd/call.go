package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/qrave1/CareCall/internal/application/config"
	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/client/call"
	"github.com/qrave1/CareCall/internal/client/media"
	"github.com/qrave1/CareCall/internal/client/signaling"
	"github.com/qrave1/CareCall/internal/domain"
	"github.com/qrave1/CareCall/internal/infra/ports/http/middleware"
)

var (
	flagCallServer       string
	flagCallToken        string
	flagCallRole         string
	flagCallAppointment  bool
	flagCallNoVideo      bool
	flagCallDuration     time.Duration
	flagCallJWTSecret    string
	flagCallIdentityRole string
	flagCallLogLevel     string
)

var callCmd = &cobra.Command{
	Use:   "call <room-id|appointment-id>",
	Short: "Join a consultation as a headless participant",
	Long: `Join a consultation room with synthetic audio and video.

Examples:
  carecall call consultation-42 --role initiator
  carecall call 42 --appointment --jwt-secret dev --identity-role patient`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd.Context(), args[0])
	},
}

func init() {
	callCmd.Flags().StringVar(&flagCallServer, "server", "", "signaling websocket URL (CARECALL_SERVER_URL)")
	callCmd.Flags().StringVar(&flagCallToken, "token", "", "identity token (CARECALL_TOKEN)")
	callCmd.Flags().StringVar(&flagCallRole, "role", "", "initiator or responder, empty to use the identity role")
	callCmd.Flags().BoolVar(&flagCallAppointment, "appointment", false, "treat the argument as an appointment id")
	callCmd.Flags().BoolVar(&flagCallNoVideo, "no-video", false, "audio only")
	callCmd.Flags().DurationVar(&flagCallDuration, "duration", 0, "end the call after this duration, 0 to wait for the peer")
	callCmd.Flags().StringVar(&flagCallJWTSecret, "jwt-secret", "", "sign a development token with this secret when no token is given")
	callCmd.Flags().StringVar(&flagCallIdentityRole, "identity-role", "patient", "identity role for a development token (doctor, patient, asha)")
	callCmd.Flags().StringVar(&flagCallLogLevel, "log-level", "INFO", "DEBUG, INFO, WARN or ERROR")

	rootCmd.AddCommand(callCmd)
}

func runCall(ctx context.Context, arg string) error {
	setupLogger(flagCallLogLevel, false)

	cfg, err := config.NewClient()
	if err != nil {
		return fmt.Errorf("load client config: %w", err)
	}

	if flagCallServer != "" {
		cfg.ServerURL = flagCallServer
	}
	if flagCallToken != "" {
		cfg.Token = flagCallToken
	}

	if cfg.Token == "" && flagCallJWTSecret != "" {
		cfg.Token, err = devToken(flagCallJWTSecret, flagCallIdentityRole)
		if err != nil {
			return err
		}
	}

	roomID := arg
	if flagCallAppointment {
		roomID, err = domain.RoomIDFromAppointment(arg)
	} else {
		err = domain.ValidateRoomID(arg)
	}
	if err != nil {
		return err
	}

	var role domain.Role
	if flagCallRole != "" {
		if role, err = domain.ParseRole(flagCallRole); err != nil {
			return err
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := signaling.NewClient(cfg.ServerURL, cfg.Token)
	if err = client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.ServerURL, err)
	}
	defer client.Close()

	c, err := call.New(
		call.Config{
			RoomID:           roomID,
			Role:             role,
			ICEServers:       []webrtc.ICEServer{{URLs: cfg.STUNURLs}},
			Constraints:      media.Constraints{Audio: true, Video: !flagCallNoVideo},
			PeerLeaveTimeout: cfg.PeerLeaveTimeout,
			MediaTimeout:     cfg.MediaTimeout,
		},
		client,
		media.NewSyntheticSource(),
		call.WithListener(logCallEvent),
	)
	if err != nil {
		return err
	}

	if err = c.StartCall(ctx); err != nil {
		c.EndCall()
		return err
	}

	var deadline <-chan time.Time
	if flagCallDuration > 0 {
		timer := time.NewTimer(flagCallDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-c.Done():
	case <-ctx.Done():
		slog.Info("interrupted, ending call")
	case <-deadline:
		slog.Info("call duration reached, ending call")
	}

	c.EndCall()

	for _, track := range c.RemoteTracks() {
		stats := track.Stats()
		slog.Info(
			"remote track",
			slog.String("kind", track.Kind),
			slog.Uint64("packets", stats.Packets),
			slog.Uint64("bytes", stats.PayloadBytes),
		)
	}

	if c.State() == call.StateFailed {
		return c.Err()
	}

	return nil
}

func logCallEvent(ev call.Event) {
	switch ev.Kind {
	case call.EventStateChanged:
		slog.Info("call state", slog.String(constant.State, ev.State.String()))
	case call.EventRemoteTrack:
		slog.Info("remote track attached", slog.String("kind", ev.Track.Kind), slog.String("track", ev.Track.ID))
	case call.EventLocalStream:
		slog.Info("local media ready", slog.Int("tracks", len(ev.Stream.Tracks())))
	case call.EventError:
		slog.Warn("call error", slog.Any(constant.Error, ev.Err))
	}
}

// devToken подписывает токен как identity модуль, только для локальной отладки
func devToken(secret, identityRole string) (string, error) {
	claims := middleware.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
		UID:  uuid.NewString(),
		Role: identityRole,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign dev token: %w", err)
	}

	return token, nil
}
