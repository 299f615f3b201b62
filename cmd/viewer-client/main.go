package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duskwatch/camstream/internal/config"
	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/logger"
	"github.com/duskwatch/camstream/internal/viewerclient"
)

var (
	version = "0.1.0"
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "viewer-client",
	Short: "camstream viewer-client: connects to a surveillance-server and decodes its stream",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect and stream until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runViewer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("viewer-client v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/camstream/viewer.yaml)")
	rootCmd.PersistentFlags().String("addr", "", "server address, host:port")
	rootCmd.PersistentFlags().String("password", "", "challenge-response shared password")
	rootCmd.PersistentFlags().Int("client-version", 0, "negotiated HELLO version, 2 or 3")
	rootCmd.PersistentFlags().Int("tier", 0, "decode queue tier: 15 low, 25 medium, 30 high")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn, or error")

	_ = v.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr"))
	_ = v.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
	_ = v.BindPFlag("client_version", rootCmd.PersistentFlags().Lookup("client-version"))
	_ = v.BindPFlag("tier", rootCmd.PersistentFlags().Lookup("tier"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runViewer() error {
	cfg, err := config.LoadViewer(v, cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		fmt.Printf("warning: invalid log level %q, using default\n", cfg.LogLevel)
	}
	log := logger.Logger().With("component", "cli")

	client := viewerclient.New(viewerclient.Config{
		Addr:          cfg.Addr,
		Password:      cfg.Password,
		ClientVersion: cfg.ClientVersion,
		Tier:          cfg.Tier,
		OnFrame: func(f frame.EncodedFrame) {
			log.Debugw("frame decoded", "keyframe", f.IsKeyframe, "pts_us", f.PTSUs, "bytes", len(f.Payload))
		},
		OnCodecSpecificData: func(csd frame.CodecSpecificData) {
			log.Infow("codec-specific data received", "sps_len", len(csd.SPS), "pps_len", len(csd.PPS))
		},
		OnStateChange: func(state viewerclient.ConnectionState) {
			log.Infow("connection state changed", "state", state.String())
		},
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("connecting", "addr", cfg.Addr, "client_version", cfg.ClientVersion)
	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		log.Errorw("viewer client exited with error", "error", err)
		return err
	}
	log.Infow("viewer client stopped")
	return nil
}
