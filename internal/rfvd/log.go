package rfvd

import "log/slog"

// The backend's original structured channels, preserved as a "channel"
// attribute so a log sink can still split them out even though they all
// flow through the same slog logger.
const (
	channelInfo        = "info"
	channelGuestError  = "guest_error"
	channelErrorReport = "error_report"
)

func logInfo(msg string, args ...any) {
	slog.Default().Info(msg, append([]any{"channel", channelInfo}, args...)...)
}

func logGuestError(msg string, args ...any) {
	slog.Default().Warn(msg, append([]any{"channel", channelGuestError}, args...)...)
}

func logErrorReport(msg string, args ...any) {
	slog.Default().Error(msg, append([]any{"channel", channelErrorReport}, args...)...)
}

// logInfoDebug is used for dispatch-time backend errors: a failed
// per-access call is logged at debug level, since logging it at Info would
// be far too noisy under sustained guest traffic.
func logInfoDebug(msg string, args ...any) {
	slog.Default().Debug(msg, args...)
}
