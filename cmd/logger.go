package cmd

import (
	"log/slog"
	"os"
	"strings"
)

func setupLogger(level string, debug bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}

	if debug {
		lvl = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: lvl},
			),
		),
	)
}
