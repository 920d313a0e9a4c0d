// Package config loads the player configuration from defaults, an optional
// yaml file and PLAYER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	defaultPacketQueueSize = 4096
	defaultFrameQueueSize  = 50
	defaultMaxQueueBytes   = "15MiB"
	defaultRetryDelay      = 10 * time.Millisecond
	defaultMaxDecodeErrors = 32
	defaultMinDelay        = 10 * time.Millisecond
	defaultRenderRetry     = time.Millisecond
	defaultIdleDelay       = 100 * time.Millisecond
	defaultSyncThreshold   = 0.01
	defaultNoSyncThreshold = 1.0
	defaultSyncMode        = "auto"
	defaultSampleRate      = 44100
	defaultChannels        = 2
	defaultWindowTitle     = "Gapless Player"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Reader   ReaderConfig   `mapstructure:"reader"`
	Decoder  DecoderConfig  `mapstructure:"decoder"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Window   WindowConfig   `mapstructure:"window"`
	Playlist PlaylistConfig `mapstructure:"playlist"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	// File receives the log instead of stderr when set.
	File string `mapstructure:"file"`
}

type QueueConfig struct {
	Packets int `mapstructure:"packets"`
	Frames  int `mapstructure:"frames"`
	// MaxBytes bounds the packets a reader keeps queued across both streams.
	MaxBytes ByteSize `mapstructure:"max_bytes"`
}

type ReaderConfig struct {
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type DecoderConfig struct {
	MaxErrors int `mapstructure:"max_errors"`
}

type RendererConfig struct {
	MinDelay        time.Duration `mapstructure:"min_delay"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	IdleDelay       time.Duration `mapstructure:"idle_delay"`
	SyncThreshold   float64       `mapstructure:"sync_threshold"`
	NoSyncThreshold float64       `mapstructure:"no_sync_threshold"`
	// Sync picks the master clock: auto, audio, video or external.
	Sync string `mapstructure:"sync"`
}

type AudioConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	SampleRate int  `mapstructure:"sample_rate"`
	Channels   int  `mapstructure:"channels"`
}

type WindowConfig struct {
	Title string `mapstructure:"title"`
	// Width and Height of 0 size the window to half the first video.
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type PlaylistConfig struct {
	IncludeHidden bool `mapstructure:"include_hidden"`
}

func Load(configPath string) (*Config, error) {
	return LoadWith(viper.New(), configPath)
}

// SyncMode returns the parsed renderer.sync key. Validate rejects unknown
// names, so it is only used on a validated config.
func (c *Config) SyncMode() media.SyncMode {
	m, _ := media.ParseSyncMode(c.Renderer.Sync)
	return m
}

// LoadWith reads the configuration through v, so flags bound to v take
// precedence over the file and the environment.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("player")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gapless")
	}

	v.SetEnvPrefix("PLAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file failed: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("config: unmarshaling failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("queue.packets", defaultPacketQueueSize)
	v.SetDefault("queue.frames", defaultFrameQueueSize)
	v.SetDefault("queue.max_bytes", defaultMaxQueueBytes)

	v.SetDefault("reader.retry_delay", defaultRetryDelay)

	v.SetDefault("decoder.max_errors", defaultMaxDecodeErrors)

	v.SetDefault("renderer.min_delay", defaultMinDelay)
	v.SetDefault("renderer.retry_delay", defaultRenderRetry)
	v.SetDefault("renderer.idle_delay", defaultIdleDelay)
	v.SetDefault("renderer.sync_threshold", defaultSyncThreshold)
	v.SetDefault("renderer.no_sync_threshold", defaultNoSyncThreshold)
	v.SetDefault("renderer.sync", defaultSyncMode)

	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.sample_rate", defaultSampleRate)
	v.SetDefault("audio.channels", defaultChannels)

	v.SetDefault("window.title", defaultWindowTitle)
	v.SetDefault("window.width", 0)
	v.SetDefault("window.height", 0)

	v.SetDefault("playlist.include_hidden", false)
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if c.Queue.Packets <= 0 {
		errs = append(errs, errors.New("queue.packets must be positive"))
	}
	if c.Queue.Frames <= 0 {
		errs = append(errs, errors.New("queue.frames must be positive"))
	}
	if c.Queue.MaxBytes <= 0 {
		errs = append(errs, errors.New("queue.max_bytes must be positive"))
	}
	if c.Reader.RetryDelay <= 0 {
		errs = append(errs, errors.New("reader.retry_delay must be positive"))
	}
	if c.Decoder.MaxErrors <= 0 {
		errs = append(errs, errors.New("decoder.max_errors must be positive"))
	}
	if c.Renderer.MinDelay <= 0 || c.Renderer.RetryDelay <= 0 || c.Renderer.IdleDelay <= 0 {
		errs = append(errs, errors.New("renderer delays must be positive"))
	}
	if c.Renderer.SyncThreshold <= 0 || c.Renderer.NoSyncThreshold <= c.Renderer.SyncThreshold {
		errs = append(errs, errors.New("renderer.no_sync_threshold must exceed a positive renderer.sync_threshold"))
	}
	if _, err := media.ParseSyncMode(c.Renderer.Sync); err != nil {
		errs = append(errs, fmt.Errorf("renderer.sync: %w", err))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels: unsupported channel count %d", c.Audio.Channels))
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		errs = append(errs, errors.New("window size must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
