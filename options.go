// Configuration options for rxcore schedulers
// 调度器配置选项
package rxcore

import (
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ============================================================================
// 配置选项
// ============================================================================

// Option 配置选项接口
type Option interface {
	Apply(config *Config)
}

// Config 配置结构
type Config struct {
	// Logger 记录调度任务中被恢复的 panic 等事件
	Logger logr.Logger
	// Meter 监控调度器使用的 OpenTelemetry Meter
	Meter metric.Meter
	// WorkerID 为每个 Worker 生成标识，用于日志
	WorkerID func() string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Logger:   DefaultLogger(),
		Meter:    noop.NewMeterProvider().Meter(instrumentationName),
		WorkerID: uuid.NewString,
	}
}

func newConfig(options []Option) *Config {
	config := DefaultConfig()
	for _, opt := range options {
		if opt != nil {
			opt.Apply(config)
		}
	}
	return config
}

// optionFunc 函数形式的选项
type optionFunc func(config *Config)

// Apply 应用选项
func (f optionFunc) Apply(config *Config) {
	f(config)
}

// WithLogger 指定日志记录器
func WithLogger(logger logr.Logger) Option {
	return optionFunc(func(config *Config) {
		config.Logger = logger
	})
}

// WithMeter 指定 OpenTelemetry Meter
func WithMeter(meter metric.Meter) Option {
	return optionFunc(func(config *Config) {
		if meter != nil {
			config.Meter = meter
		}
	})
}

// WithWorkerIDs 指定 Worker 标识生成函数
func WithWorkerIDs(next func() string) Option {
	return optionFunc(func(config *Config) {
		if next != nil {
			config.WorkerID = next
		}
	})
}

// ============================================================================
// 包级日志
// ============================================================================

var defaultLogger atomic.Pointer[logr.Logger]

// SetDefaultLogger 设置包级默认日志记录器。
// 影响之后创建的调度器，以及 Subscriber 吞掉的终止回调 panic 的记录。
func SetDefaultLogger(logger logr.Logger) {
	defaultLogger.Store(&logger)
}

// DefaultLogger 返回包级默认日志记录器，未设置时丢弃所有日志
func DefaultLogger() logr.Logger {
	if l := defaultLogger.Load(); l != nil {
		return *l
	}
	return logr.Discard()
}
