package logger

import "log/slog"

// Init настраивает slog в зависимости от среды
func Init(cfg Config) {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "collab-service"
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)

	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg)
	default:
		h = newStdHandler(cfg)
	}

	h = h.WithAttrs(commonAttrs(cfg))

	slog.SetDefault(slog.New(h))
}
