package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thesyncim/confdrive/pkg/mediastate"
	"github.com/thesyncim/confdrive/pkg/roomapi"
	"github.com/thesyncim/confdrive/pkg/workflow"
)

type smokeOptions struct {
	url        string
	email      string
	password   string
	room       string
	apiRetries int
}

func newSmokeCommand(g *globals) *cobra.Command {
	var opts smokeOptions
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Create a room, publish camera and microphone, then stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSmoke(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "", "Application origin, e.g. https://localhost")
	flags.StringVar(&opts.email, "email", "", "Login email of the room owner")
	flags.StringVar(&opts.password, "password", "", "Login password of the room owner")
	flags.StringVar(&opts.room, "room", "", "Title of the room to create; generated if empty")
	flags.IntVar(&opts.apiRetries, "api-retries", 2, "Retries of failed REST requests")
	return cmd
}

// reporter prints one PASS or FAIL line per step.
type reporter struct {
	out io.Writer
}

func (r reporter) step(name string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		fmt.Fprintf(r.out, "FAIL %s: %v\n", name, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Fprintf(r.out, "PASS %s (%s)\n", name, time.Since(start).Round(time.Millisecond))
	return nil
}

func expectMedia(c *workflow.Client, want mediastate.Snapshot) error {
	if got := c.Media(); got != want {
		return fmt.Errorf("media state is %+v, want %+v", got, want)
	}
	return nil
}

func runSmoke(ctx context.Context, g *globals, opts smokeOptions, out io.Writer) (err error) {
	if opts.url == "" {
		return errors.New("--url is required")
	}
	if opts.email == "" || opts.password == "" {
		return errors.New("--email and --password are required")
	}
	if opts.room == "" {
		opts.room = "smoke-" + uuid.NewString()[:8]
	}
	l, err := g.launcher()
	if err != nil {
		return err
	}
	cfg := g.workflowConfig(opts.url)
	api, err := roomapi.New(cfg.BaseURL, roomapi.WithRetryMax(opts.apiRetries), roomapi.WithLogger(cfg.Logger.WithName("roomapi")))
	if err != nil {
		return err
	}

	r := reporter{out: out}
	var c *workflow.Client
	if err := r.step("open", func() error {
		c, err = workflow.NewClient(ctx, cfg, l, "smoke", cfg.BaseURL+"/")
		return err
	}); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = errors.Join(err, workflow.StopAll(stopCtx, c))
	}()

	var id string
	steps := []struct {
		name string
		fn   func() error
	}{
		{"login", func() error { return c.Login(ctx, opts.email, opts.password) }},
		{"dashboard", func() error { return c.Dashboard(ctx) }},
		{"create room", func() error { return c.CreateRoom(ctx, opts.room, roomapi.Public, "") }},
		{"resolve room id", func() error {
			var ok bool
			id, ok, err = c.ResolveRoomID(ctx, opts.room, "")
			if err == nil && !ok {
				err = fmt.Errorf("room %q is not listed", opts.room)
			}
			return err
		}},
		{"check room through the api", func() error {
			if _, err := api.Login(ctx, opts.email, opts.password); err != nil {
				return err
			}
			room, err := api.Room(ctx, id, "")
			if err != nil {
				return err
			}
			if room.Title != opts.room || room.ViewPolicy != roomapi.Public {
				return fmt.Errorf("room %s is %q/%s, want %q/%s", id, room.Title, room.ViewPolicy, opts.room, roomapi.Public)
			}
			return nil
		}},
		{"publish camera and microphone", func() error {
			if err := c.PublishAudioVideo(ctx, workflow.PublishOptions{}); err != nil {
				return err
			}
			return expectMedia(c, mediastate.Snapshot{Video: mediastate.Play, Audio: mediastate.Play})
		}},
		{"stop all", func() error {
			if err := c.StopAudioVideo(ctx); err != nil {
				return err
			}
			return expectMedia(c, mediastate.Snapshot{})
		}},
	}
	for _, s := range steps {
		if err := r.step(s.name, s.fn); err != nil {
			if shot, serr := screenshot(ctx, c, "smoke-failure"); serr == nil {
				fmt.Fprintf(out, "screenshot: %s\n", shot)
			}
			return err
		}
	}
	fmt.Fprintf(out, "room %q (%s) OK\n", opts.room, id)
	return nil
}

// screenshot saves the active tab under a timestamped name in the working
// directory.
func screenshot(ctx context.Context, c *workflow.Client, prefix string) (string, error) {
	path := fmt.Sprintf("%s-%s.png", prefix, time.Now().Format("20060102-150405"))
	return path, c.Screenshot(ctx, path)
}
