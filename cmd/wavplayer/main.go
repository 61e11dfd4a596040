// Command wavplayer is the embedded WAV music player: point it at a
// directory of WAV files and it renders a terminal control surface while
// playing them back through ALSA with on-the-fly time-scale modification.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/doismellburning/wavplayer/internal/alsa"
	"github.com/doismellburning/wavplayer/internal/config"
	"github.com/doismellburning/wavplayer/internal/devicescan"
	"github.com/doismellburning/wavplayer/internal/jukebox"
	"github.com/doismellburning/wavplayer/internal/player"
	"github.com/doismellburning/wavplayer/internal/tui"
	"github.com/doismellburning/wavplayer/internal/wavfile"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, cfgErr := config.Load()

	var (
		volume      int
		device      string
		listDevices bool
		logLevel    string
	)

	pflag.IntVarP(&volume, "volume", "v", orDefault(cfg.DefaultVolume, 2), "playback volume level, 0..4")
	pflag.StringVarP(&device, "device", "d", orDefaultStr(cfg.Device, "default"), "ALSA PCM device name")
	pflag.BoolVar(&listDevices, "list-devices", false, "enumerate candidate playback devices and exit")
	pflag.StringVar(&logLevel, "log-level", orDefaultStr(cfg.LogLevel, envOr("LOG_LEVEL", "info")), "log level: debug, info, warn, error")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--volume L] [--device NAME] <dir>\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	logger.SetLevel(parseLevel(logLevel))

	if cfgErr != nil {
		logger.Warn("config load failed, using flag defaults", "err", cfgErr)
	}

	if listDevices {
		for _, d := range devicescan.List(logger) {
			fmt.Printf("%s\t%s\n", d.Name, d.Description)
		}
		return 0
	}

	if pflag.NArg() != 1 {
		pflag.Usage()
		return 1
	}
	dir := pflag.Arg(0)

	mixer, err := alsa.OpenMixer(device, "Master")
	if err != nil {
		logger.Error("opening mixer", "err", err)
		return 1
	}
	defer mixer.Close()

	jb, err := jukebox.Load(dir, mixer, makePlayerFactory(device, logger), logger)
	if err != nil {
		logger.Error("loading songs", "err", err)
		return 1
	}

	if err := jb.SetVolume(clampVolumeLevel(volume) * 128); err != nil {
		logger.Warn("initial set_volume failed", "err", err)
	}

	surface, err := tui.Open(jb, logger)
	if err != nil {
		logger.Error("opening terminal control surface", "err", err)
		return 1
	}
	defer surface.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := jb.Run(ctx); err != nil {
			logger.Error("jukebox exited with error", "err", err)
		}
	}()

	surface.Run(ctx)

	return 0
}

func makePlayerFactory(device string, logger *log.Logger) jukebox.PlayerFactory {
	return func(path string, multiplier int) (*player.Player, error) {
		spec, reader, err := wavfile.Open(path)
		if err != nil {
			return nil, err
		}

		format, err := spec.SinkFormat()
		if err != nil {
			reader.Close()
			return nil, err
		}

		pcm, err := alsa.Open(device, format, spec.Channels, spec.SampleRate)
		if err != nil {
			reader.Close()
			return nil, err
		}

		return player.New(spec, reader, pcm, multiplier, logger)
	}
}

func clampVolumeLevel(l int) int {
	if l < 0 {
		return 0
	}
	if l > 4 {
		return 4
	}
	return l
}

func orDefault(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

func orDefaultStr(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func envOr(key, d string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return d
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
