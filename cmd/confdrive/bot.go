package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesyncim/confdrive/pkg/workflow"
)

type botOptions struct {
	url            string
	name           string
	duration       time.Duration
	screenshot     string
	statusInterval time.Duration
}

func newBotCommand(g *globals) *cobra.Command {
	opts := botOptions{
		name:           "bot",
		duration:       time.Minute,
		statusInterval: 30 * time.Second,
	}
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Join a room as a publishing participant for a while",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "", "Room URL, e.g. https://localhost/room/<id>")
	flags.StringVar(&opts.name, "name", opts.name, "Display name shown to other participants; empty skips the prompt")
	flags.DurationVar(&opts.duration, "duration", opts.duration, "How long to stay in the room")
	flags.StringVar(&opts.screenshot, "screenshot", "", "Write a PNG of the room to this path once publishing")
	flags.DurationVar(&opts.statusInterval, "status-interval", opts.statusInterval, "How often to print status")
	return cmd
}

// botResult summarises one bot run.
type botResult struct {
	Duration   time.Duration
	PeakHeapMB float64
	Status     string
}

func runBot(ctx context.Context, g *globals, opts botOptions, out io.Writer) (err error) {
	if opts.url == "" {
		return errors.New("--url is required")
	}
	if opts.duration <= 0 {
		return errors.New("--duration must be positive")
	}
	if opts.statusInterval <= 0 {
		return errors.New("--status-interval must be positive")
	}
	l, err := g.launcher()
	if err != nil {
		return err
	}
	base, ok := baseURL(opts.url)
	if !ok {
		return fmt.Errorf("invalid room url %q", opts.url)
	}
	cfg := g.workflowConfig(base)

	c, err := workflow.NewClient(ctx, cfg, l, opts.name, opts.url)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if serr := c.StopAudioVideo(stopCtx); serr != nil {
			cfg.Logger.Error(serr, "stopping media")
		}
		err = errors.Join(err, workflow.StopAll(stopCtx, c))
	}()

	if opts.name != "" {
		if err := c.EnterDisplayName(ctx, opts.name); err != nil {
			return err
		}
	}
	if err := c.PublishAudioVideo(ctx, workflow.PublishOptions{}); err != nil {
		return err
	}
	if opts.screenshot != "" {
		if err := c.Screenshot(ctx, opts.screenshot); err != nil {
			return err
		}
		fmt.Fprintf(out, "screenshot: %s\n", opts.screenshot)
	}

	result := hold(ctx, c, opts, out)
	printBotSummary(out, result)
	if result.Status != "PASS" {
		return errors.New("bot did not stay in the room for the whole duration")
	}
	return nil
}

// hold stays in the room until the duration elapses or ctx is done,
// printing the media state and heap use every status interval.
func hold(ctx context.Context, c *workflow.Client, opts botOptions, out io.Writer) botResult {
	result := botResult{Status: "PASS"}
	var memStats runtime.MemStats

	start := time.Now()
	deadline := time.NewTimer(opts.duration)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.statusInterval)
	defer ticker.Stop()

	fmt.Fprintf(out, "[%s] In room as %q\n", formatDuration(0), opts.name)
	for {
		select {
		case <-ctx.Done():
			// Interrupted runs end early on purpose.
			result.Duration = time.Since(start)
			return result
		case <-deadline.C:
			result.Duration = time.Since(start)
			return result
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			runtime.ReadMemStats(&memStats)
			heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
			if heapMB > result.PeakHeapMB {
				result.PeakHeapMB = heapMB
			}
			media := c.Media()
			fmt.Fprintf(out, "[%s] Video: %s, Audio: %s, Screen: %s, HeapAlloc: %.2f MB\n",
				formatDuration(elapsed), media.Video, media.Audio, media.Screen, heapMB)
			if !c.Running() {
				fmt.Fprintf(out, "[%s] ERROR: browser session ended\n", formatDuration(elapsed))
				result.Duration = elapsed
				result.Status = "FAIL"
				return result
			}
		}
	}
}

func printBotSummary(out io.Writer, result botResult) {
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Bot run complete\n")
	fmt.Fprintf(out, "================\n")
	fmt.Fprintf(out, "Duration:       %v\n", result.Duration.Round(time.Second))
	fmt.Fprintf(out, "Peak HeapAlloc: %.2f MB\n", result.PeakHeapMB)
	fmt.Fprintf(out, "Status:         %s\n", result.Status)
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
