// Package logging builds the process-wide structured logger. Event names are
// lowercase snake_case; token values never reach a log line unmasked.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

const appName = "calendar-mirror"

// New returns a JSON logger at the given level with the app attribute set;
// the api and worker binaries add their own service attribute on top.
func New(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(h).With(slog.String("app", appName))
}

// MaskToken keeps just enough of an access or refresh token to correlate log
// lines without ever exposing a usable credential.
func MaskToken(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}
	if len(tok) <= 8 {
		return "***"
	}
	return tok[:3] + "***" + tok[len(tok)-3:]
}
