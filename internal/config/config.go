// Package config loads layered configuration (flags > env > file) for the
// two camstream binaries, grounded on the agent-style config.Load pattern:
// a Default() baseline and a viper read-merge-unmarshal pass. Nothing is
// written back to a config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig is the surveillance-server daemon's configuration surface.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Password   string `mapstructure:"password"`

	Width      uint32 `mapstructure:"width"`
	Height     uint32 `mapstructure:"height"`
	FPS        uint8  `mapstructure:"fps"`
	BitrateBps uint32 `mapstructure:"bitrate_bps"`

	IncludeAudio bool   `mapstructure:"include_audio"`
	RecordDir    string `mapstructure:"record_dir"`

	LogLevel string `mapstructure:"log_level"`

	// DiagAddr, when non-empty, serves a read-only websocket status feed
	// (session count, epoch, recording state) for a browser dashboard; leave
	// empty to disable the side-channel entirely.
	DiagAddr string `mapstructure:"diag_addr"`

	HookScripts     []string `mapstructure:"hook_scripts"`
	HookWebhooks    []string `mapstructure:"hook_webhooks"`
	HookStdioFormat string   `mapstructure:"hook_stdio_format"`
	HookTimeout     string   `mapstructure:"hook_timeout"`
	HookConcurrency int      `mapstructure:"hook_concurrency"`
}

// DefaultServerConfig returns the baseline a fresh config file is seeded
// with, mirroring spec.md's defaults (1280x720@30, 2 Mbps, port 9090).
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:      ":9090",
		Password:        "123456",
		Width:           1280,
		Height:          720,
		FPS:             30,
		BitrateBps:      2_000_000,
		RecordDir:       "recordings",
		LogLevel:        "info",
		HookStdioFormat: "json",
		HookTimeout:     "30s",
		HookConcurrency: 10,
	}
}

// ViewerConfig is the viewer-client's configuration surface.
type ViewerConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	ClientVersion int    `mapstructure:"client_version"`
	Tier          int    `mapstructure:"tier"`
	LogLevel      string `mapstructure:"log_level"`
}

// DefaultViewerConfig returns the viewer-client baseline: v2 framing (the
// conservative default per the v3-viewer open question, see DESIGN.md),
// medium decode-queue tier.
func DefaultViewerConfig() *ViewerConfig {
	return &ViewerConfig{
		Addr:          "127.0.0.1:9090",
		Password:      "123456",
		ClientVersion: 2,
		Tier:          25,
		LogLevel:      "info",
	}
}

// envPrefix is shared by both binaries so deployments can mix and match
// environment variables without re-deriving a prefix per command.
const envPrefix = "CAMSTREAM"

// LoadServer reads layered config (flags already bound into v by the
// caller's cobra command > env CAMSTREAM_* > cfgFile > defaults) into a
// ServerConfig.
func LoadServer(v *viper.Viper, cfgFile string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := load(v, cfgFile, "server"); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal server config: %w", err)
	}
	return cfg, nil
}

// LoadViewer is LoadServer's counterpart for the viewer-client binary.
func LoadViewer(v *viper.Viper, cfgFile string) (*ViewerConfig, error) {
	cfg := DefaultViewerConfig()
	if err := load(v, cfgFile, "viewer"); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal viewer config: %w", err)
	}
	return cfg, nil
}

func load(v *viper.Viper, cfgFile, name string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("config: read: %w", err)
		}
	}
	return nil
}

// configDir returns the per-user config directory camstream looks in when
// no explicit --config flag is given.
func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "camstream")
	}
	return "."
}
