package logger

// LevelProvider supplies per-component log levels from configuration.
// Implemented by pkg/config.LoggingConfig; defined here to avoid an import cycle.
type LevelProvider interface {
	GetComponentLevel(component string) string
	IsDevelopment() bool
}

// NewComponentLoggerFromConfig creates a child logger for a component using
// the configured per-component level. Falls back to the default logger when
// the configuration is unusable.
func NewComponentLoggerFromConfig(component string, cfg LevelProvider) *Logger {
	if cfg == nil {
		return GetDefaultLogger().WithComponent(component)
	}

	l, err := NewLogger(cfg.GetComponentLevel(component), cfg.IsDevelopment())
	if err != nil {
		return GetDefaultLogger().WithComponent(component)
	}

	return l.WithComponent(component)
}
