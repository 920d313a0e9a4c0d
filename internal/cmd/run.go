package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/config"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/decoder"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/ffmpeg"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/log"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/platform"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/playlist"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/reader"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/renderer"
	"github.com/asticode/go-astikit"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, cfg *config.Config, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fs := afero.NewOsFs()
	closer := astikit.NewCloser()
	defer closer.Close()

	logger, logFile, err := log.New(fs, cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	closer.AddWithError(logFile.Close)

	files, err := playlist.Scan(fs, args, cfg.Playlist.IncludeHidden)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"files":       len(files),
		"queue_bytes": cfg.Queue.MaxBytes.String(),
	}).Info("player: playlist ready")

	format := audioFormat(cfg.Audio)
	opts := controllerOptions(cfg, logger)
	opts.Opener = ffmpeg.NewOpener(format)

	a := app.New()
	win := platform.NewWindow(a, cfg.Window)
	opts.Output = renderer.NewOutput(win)

	if cfg.Audio.Enabled {
		dev, err := platform.NewDevice(format)
		if err != nil {
			return err
		}
		closer.AddWithError(dev.Close)
		opts.Audio = dev
	}

	c := playlist.New(opts)
	win.OnSeek = func(incr float64) {
		if !c.Seek(incr) {
			logger.WithField("increment", incr).Debug("player: seek ignored")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	win.SetOnClosed(cancel)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer fyne.Do(a.Quit)
		return c.Run(gctx, files)
	})

	win.Show()
	a.Run()
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("player: %w", err)
	}
	logger.Info("player: done")
	return nil
}

func audioFormat(cfg config.AudioConfig) media.AudioFormat {
	return media.AudioFormat{
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
		BytesPerSample: media.DefaultAudioFormat.BytesPerSample,
	}
}

// controllerOptions maps the configuration onto the pipeline stages. Opener,
// Output and Audio are left to the caller.
func controllerOptions(cfg *config.Config, logger logrus.FieldLogger) playlist.Options {
	return playlist.Options{
		Session: media.Options{
			PacketQueueSize: cfg.Queue.Packets,
			FrameQueueSize:  cfg.Queue.Frames,
			Audio:           audioFormat(cfg.Audio),
			Sync:            cfg.SyncMode(),
		},
		Reader: reader.Config{
			MaxQueueBytes: cfg.Queue.MaxBytes.Int(),
			RetryDelay:    cfg.Reader.RetryDelay,
		},
		Decoder: decoder.Config{
			MaxDecodeErrors: cfg.Decoder.MaxErrors,
		},
		Renderer: renderer.Config{
			MinDelay:        cfg.Renderer.MinDelay,
			RetryDelay:      cfg.Renderer.RetryDelay,
			IdleDelay:       cfg.Renderer.IdleDelay,
			SyncThreshold:   cfg.Renderer.SyncThreshold,
			NoSyncThreshold: cfg.Renderer.NoSyncThreshold,
		},
		Logger: logger,
	}
}
