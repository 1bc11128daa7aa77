package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avcompose"
	"github.com/xaionaro-go/avcompose/bridge/native"
	"github.com/xaionaro-go/avcompose/config"
	"github.com/xaionaro-go/avcompose/engine/libav"
	"github.com/xaionaro-go/avcompose/metrics"
	"github.com/xaionaro-go/avcompose/stage"
	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/observability"
	"golang.org/x/sync/errgroup"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] <input-file> <output-file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        %s [flags] --task <task.yaml>\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	taskPath := pflag.String("task", "", "a YAML task description to execute instead of the positional arguments")
	format := pflag.String("format", types.DefaultMuxerFormat, "the container format of the output")
	videoCodec := pflag.String("video-codec", types.DefaultVideoCodec, "the codec to encode video with")
	audioCodec := pflag.String("audio-codec", types.DefaultAudioCodec, "the codec to encode audio with")
	videoBitRate := pflag.String("video-bitrate", "", "the bitrate of the video, e.g. 4M")
	audioBitRate := pflag.String("audio-bitrate", "", "the bitrate of the audio, e.g. 128K")
	ownershipMode := types.OwnershipModeUndefined
	pflag.Var(&ownershipMode, "ownership-mode", "how stages pass payloads to each other: handle or copy")
	remux := pflag.Bool("remux", false, "do not re-encode, only change the container")
	printTrace := pflag.Bool("print-trace", false, "print the resolution steps to stderr")
	metricsAddr := pflag.String("metrics-listen-addr", "", "an address to serve Prometheus metrics at")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	var task *config.Task
	switch {
	case *taskPath != "":
		var err error
		task, err = config.ParseFile(*taskPath)
		if err != nil {
			l.Fatal(err)
		}
	case pflag.NArg() == 2:
		video := &types.VideoEncoderConfig{Codec: *videoCodec, BitRate: parseBitRate(l, *videoBitRate)}
		audio := &types.AudioEncoderConfig{Codec: *audioCodec, BitRate: parseBitRate(l, *audioBitRate)}
		input := &config.Stage{File: pflag.Arg(0)}
		if !*remux {
			input = &config.Stage{Kind: types.KindEncoder, Video: video, Audio: audio, Input: input}
		}
		task = &config.Task{
			Output: pflag.Arg(1),
			Pipeline: config.Stage{
				Kind:          types.KindMuxer,
				Format:        *format,
				OwnershipMode: ownershipMode,
				Input:         input,
			},
		}
	default:
		pflag.Usage()
		os.Exit(1)
	}

	init, err := task.Pipeline.Initializer(config.OpenFile)
	if err != nil {
		l.Fatal(err)
	}

	libav.RedirectLogs(ctx)

	registry := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(registry); err != nil {
		l.Fatal(err)
	}

	resolver := &avcompose.Resolver{
		Env: &stage.Env{
			Engine:  libav.New(),
			Bridge:  native.New(),
			Metrics: m,
		},
		Trace: &avcompose.Trace{},
	}

	root, err := resolver.Build(ctx, init).Await(ctx)
	if *printTrace {
		for idx, step := range resolver.Trace.Steps() {
			fmt.Fprintf(os.Stderr, "%2d. %v: %v -> %v (%s)\n", idx, step.Target, step.Shape, step.Action, step.OwnershipMode)
		}
	}
	if err != nil {
		l.Fatal(err)
	}
	l.Debugf("built chain: %v", resolver.Trace.Chain())

	output, err := openOutput(task.Output)
	if err != nil {
		l.Fatal(err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancelFn()
		startedAt := time.Now()
		n, err := stage.Drain(ctx, root, output)
		if closeErr := output.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		l.Infof("written %s in %v", humanize.Bytes(uint64(n)), time.Since(startedAt))
		return nil
	})

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:    *metricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	if err := g.Wait(); err != nil {
		l.Fatal(err)
	}
}

func parseBitRate(l logger.Logger, s string) int64 {
	if s == "" {
		return 0
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		l.Fatalf("unable to parse bitrate '%s': %v", s, err)
	}
	return int64(v)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create '%s': %w", path, err)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
