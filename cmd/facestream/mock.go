package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/facestream/internal/mockserver"
)

var mockOpts mockserver.Options

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run the mock animation service",
	Long: `Run an in-process animation service that answers every upload with
synthetic frames: 52 channels, weights 1+i/52, one frame per 1/30 s of audio.

Examples:
  facestream mock
  MOCK_ADDR=:52001 facestream mock --frame-delay 10ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lis, err := net.Listen("tcp", cfg.MockAddr)
		if err != nil {
			return err
		}
		srv := mockserver.New(mockOpts, logger)

		errc := make(chan error, 1)
		go func() { errc <- srv.Serve(lis) }()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errc:
			return err
		}
		logger.Info("shutting down", zap.Int64("streams", srv.Streams()))
		srv.GracefulStop()
		return nil
	},
}

func init() {
	f := mockCmd.Flags()
	f.IntVar(&mockOpts.FrameRate, "fps", mockserver.DefaultFrameRate, "output frame rate")
	f.DurationVar(&mockOpts.FrameDelay, "frame-delay", 0, "delay before each frame")
	f.IntVar(&mockOpts.FailAfterFrames, "fail-after", 0, "end each stream with an ERROR status after this many frames")
}
