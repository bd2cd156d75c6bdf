package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/tubestash/internal/client/api"
)

func enqueueCmd() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "Queue a video for download on a running client",
		Flags: []cli.Flag{
			apiFlag,
			&cli.StringFlag{Name: "id", Usage: "Video id", Required: true},
			&cli.StringFlag{Name: "title", Usage: "Video title"},
			&cli.StringFlag{Name: "channel", Usage: "Channel id"},
			&cli.StringFlag{Name: "channel-name", Usage: "Channel name"},
			&cli.StringFlag{Name: "published", Usage: "Publish time (RFC 3339), defaults to now"},
			&cli.BoolFlag{Name: "short", Usage: "Mark as a short"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			base, err := apiBaseURL(cmd)
			if err != nil {
				return err
			}

			published := time.Now().UTC()
			if v := cmd.String("published"); v != "" {
				published, err = time.Parse(time.RFC3339, v)
				if err != nil {
					return fmt.Errorf("invalid --published: %w", err)
				}
			}

			req := api.EnqueueRequest{
				ID:          cmd.String("id"),
				Title:       cmd.String("title"),
				ChannelID:   cmd.String("channel"),
				ChannelName: cmd.String("channel-name"),
				PublishedAt: published,
				IsShort:     cmd.Bool("short"),
			}
			var out struct {
				Queued bool `json:"queued"`
			}
			if err := callAPI(ctx, http.MethodPost, base+"/api/videos", req, &out); err != nil {
				return err
			}

			if out.Queued {
				fmt.Fprintf(os.Stdout, "queued %s\n", req.ID)
			} else {
				fmt.Fprintf(os.Stdout, "%s is already queued, downloading or done\n", req.ID)
			}
			return nil
		},
	}
}
