package logging

import "go.uber.org/zap"

// New builds a zap logger for the given environment. Anything other than
// "production" gets the development config.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// OrNop returns the given logger, or a no-op logger when nil. Library entry
// points accept a nil logger and route through this.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
