// cine-export 把 CINE 文件的帧并行导出为图像文件
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cine-reader/internal/config"
	"cine-reader/internal/export"
	"cine-reader/internal/logging"
	"cine-reader/internal/video"
)

func main() {
	outDir := flag.String("o", ".", "Output directory")
	format := flag.String("format", "png", "Output format: png, jpeg, qoi, base64, bytes, raw, zstd")
	start := flag.Int("start", 0, "First frame")
	end := flag.Int("end", 0, "End frame (exclusive, 0 = last)")
	workers := flag.Int("workers", config.ExportWorkers, "Parallel workers (one open file each)")
	quality := flag.Int("quality", config.JPEGQuality, "JPEG quality")
	debug := flag.Bool("debug", os.Getenv("DEBUG") != "", "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file.cine>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		logging.SetDebugMode(true)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	kind, err := export.ParseKind(*format)
	if err != nil {
		logging.LogError("无效的格式", "format", *format, "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := exportJob{
		path:    flag.Arg(0),
		outDir:  *outDir,
		kind:    kind,
		start:   *start,
		end:     *end,
		workers: *workers,
		quality: *quality,
	}
	if err := job.run(ctx); err != nil {
		logging.LogError("导出失败", "err", err)
		os.Exit(1)
	}
}

type exportJob struct {
	path    string
	outDir  string
	kind    export.Kind
	start   int
	end     int
	workers int
	quality int
}

// run 导出 [start, end)，每个 worker 独立打开文件
func (j exportJob) run(ctx context.Context) error {
	src, err := video.Open(j.path)
	if err != nil {
		return err
	}
	h := src.Headers()
	src.Close()

	fmt.Printf("文件: %s  %dx%d  %d 帧  %d 通道  %d 位\n",
		h.Name, h.Width, h.Height, h.FrameCount, h.Channels, h.BitDepth)

	end := j.end
	if end <= 0 || end > h.FrameCount {
		end = h.FrameCount
	}
	if j.start < 0 || j.start >= end {
		return fmt.Errorf("invalid frame range [%d, %d) for %d frames", j.start, end, h.FrameCount)
	}
	if err := os.MkdirAll(j.outDir, 0o755); err != nil {
		return err
	}

	workers := max(1, min(j.workers, end-j.start))
	frames := make(chan int)
	began := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		for n := j.start; n < end; n++ {
			select {
			case frames <- n:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return j.worker(ctx, h.Name, frames)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logging.LogInfo("导出完成", "frames", end-j.start, "workers", workers,
		"dir", j.outDir, "elapsed", time.Since(began))
	return nil
}

func (j exportJob) worker(ctx context.Context, name string, frames <-chan int) error {
	src, err := video.Open(j.path)
	if err != nil {
		return err
	}
	defer src.Close()

	enc, err := export.NewEncoder(export.WithJPEGQuality(j.quality))
	if err != nil {
		return err
	}
	defer enc.Close()

	for n := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := filepath.Join(j.outDir, export.FrameFileName(name, n, j.kind))
		if err := enc.SaveFrame(src, n, j.kind, out); err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		logging.LogDebug("已导出", "frame", n, "path", out)
	}
	return nil
}
