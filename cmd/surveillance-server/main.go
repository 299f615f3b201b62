package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duskwatch/camstream/internal/collab"
	"github.com/duskwatch/camstream/internal/config"
	"github.com/duskwatch/camstream/internal/demosource"
	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/logger"
	"github.com/duskwatch/camstream/internal/recorder"
	"github.com/duskwatch/camstream/internal/streamserver"
	"github.com/duskwatch/camstream/internal/streamserver/diag"
)

var (
	version = "0.1.0"
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "surveillance-server",
	Short: "camstream surveillance-server: Primary role, one TCP listener for viewers",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the stream server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("surveillance-server v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/camstream/server.yaml)")
	rootCmd.PersistentFlags().String("listen-addr", "", "TCP listen address")
	rootCmd.PersistentFlags().String("password", "", "challenge-response shared password")
	rootCmd.PersistentFlags().String("record-dir", "", "directory recorded .flv files are written to")
	rootCmd.PersistentFlags().String("diag-addr", "", "optional read-only diagnostics websocket address, e.g. :9091")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn, or error")
	rootCmd.PersistentFlags().Bool("include-audio", false, "capture and record upstream audio")

	_ = v.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen-addr"))
	_ = v.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
	_ = v.BindPFlag("record_dir", rootCmd.PersistentFlags().Lookup("record-dir"))
	_ = v.BindPFlag("diag_addr", rootCmd.PersistentFlags().Lookup("diag-addr"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("include_audio", rootCmd.PersistentFlags().Lookup("include-audio"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer() error {
	cfg, err := config.LoadServer(v, cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		fmt.Printf("warning: invalid log level %q, using default\n", cfg.LogLevel)
	}
	log := logger.Logger().With("component", "cli")

	streamCfg := frame.StreamConfig{Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS, BitrateBps: cfg.BitrateBps}

	recMgr := recorder.NewManager(cfg.RecordDir, log)

	srvCfg := streamserver.Config{
		ListenAddr:      cfg.ListenAddr,
		Password:        cfg.Password,
		DefaultConfig:   streamCfg,
		IncludeAudio:    cfg.IncludeAudio,
		HookScripts:     cfg.HookScripts,
		HookWebhooks:    cfg.HookWebhooks,
		HookStdioFormat: cfg.HookStdioFormat,
		HookTimeout:     cfg.HookTimeout,
		HookConcurrency: cfg.HookConcurrency,
	}

	var srv *streamserver.Server
	src := demosource.New(sinkFunc(func() collab.EncodedFrameProducer { return srv }), log)
	deviceProfile := demosource.StaticDeviceProfile{LowPower: frame.StreamConfig{Width: 640, Height: 360, FPS: 10, BitrateBps: 500_000}}

	srv = streamserver.New(srvCfg, src, recMgr, deviceProfile, collab.SystemClock{}, log)

	if err := srv.Start(); err != nil {
		log.Errorw("failed to start server", "error", err)
		return err
	}
	log.Infow("server started", "addr", srv.Addr().String(), "version", version)

	var diagSrv *diag.Server
	if cfg.DiagAddr != "" {
		diagSrv = diag.New(cfg.DiagAddr, srv, log)
		diagSrv.Start()
		log.Infow("diagnostics endpoint started", "addr", cfg.DiagAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if diagSrv != nil {
			_ = diagSrv.Stop()
		}
		if err := srv.Stop(); err != nil {
			log.Errorw("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Infow("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Errorw("forced exit after timeout")
	}
	return nil
}

// sinkFunc lazily resolves the EncodedFrameProducer sink demosource.New
// needs at construction time, before the Server it targets exists. Calling
// a *streamserver.Server method set through this indirection is safe once
// Start has returned and the source begins emitting.
type sinkFunc func() collab.EncodedFrameProducer

func (f sinkFunc) OnFrame(frm frame.EncodedFrame)                  { f().OnFrame(frm) }
func (f sinkFunc) OnCodecSpecificData(csd frame.CodecSpecificData) { f().OnCodecSpecificData(csd) }
func (f sinkFunc) OnRecoveryNeeded(reason string)                  { f().OnRecoveryNeeded(reason) }

var _ collab.EncodedFrameProducer = sinkFunc(nil)
