package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // text в dev
	BackendZap Backend = "zap" // JSON через slog-zap в stage/prod
)

type Config struct {
	// Метаданные сервиса
	Service    string
	Version    string
	InstanceID string

	// Управление выводом
	Level   slog.Level
	Env     Env
	Backend Backend // default: zap для stage/prod, std для dev
	Debug   bool

	// Zap sampling
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}
