package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"filmstrip/internal/api"
	"filmstrip/internal/client"
	"filmstrip/internal/ipc"
	"filmstrip/internal/queue"
	"filmstrip/internal/ws"
)

// newWatchCommand follows renders that are already queued without uploading
// anything. With --all it subscribes to every item still in flight.
func newWatchCommand(ctx *commandContext) *cobra.Command {
	var watchAll bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "watch [token...]",
		Short: "Follow in-flight renders by token",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchAll && len(args) > 0 {
				return errors.New("specify tokens or --all, not both")
			}
			if !watchAll && len(args) == 0 {
				return errors.New("specify at least one token or --all")
			}
			out := cmd.OutOrStdout()

			tokens := append([]string(nil), args...)
			filenames := make(map[string]string)
			if err := ctx.withStore(func(ipcClient *ipc.Client, store *queue.Store) error {
				var items []api.QueueItem
				if ipcClient != nil {
					resp, err := ipcClient.QueueList(nil)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					stored, err := store.List(cmd.Context())
					if err != nil {
						return err
					}
					items = api.FromQueueItems(stored)
				}

				byToken := make(map[string]api.QueueItem, len(items))
				for _, item := range items {
					byToken[item.Token] = item
				}

				if watchAll {
					for _, item := range items {
						if status, ok := queue.ParseStatus(item.Status); ok {
							if status == queue.StatusCompleted || status == queue.StatusFailed {
								continue
							}
						}
						tokens = append(tokens, item.Token)
						filenames[item.Token] = item.Filename
					}
					return nil
				}

				for _, token := range tokens {
					item, ok := byToken[token]
					if !ok {
						return fmt.Errorf("no queue item with token %s", token)
					}
					filenames[token] = item.Filename
				}
				return nil
			}); err != nil {
				return err
			}

			if len(tokens) == 0 {
				fmt.Fprintln(out, "Nothing to watch")
				return nil
			}

			bind, err := resolveAPIBind(ctx)
			if err != nil {
				return err
			}

			waitCtx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(waitCtx, timeout)
				defer cancel()
			}

			conn := client.Dial(waitCtx, client.Options{
				URL: "ws://" + bind + "/ws",
				OnConnect: func(c *client.Conn) {
					for _, token := range tokens {
						if err := c.Subscribe(token); err != nil {
							return
						}
					}
				},
			}, nil)
			defer conn.Close()

			tracker, followErr := client.Follow(waitCtx, conn, tokens, func(msg ws.Message) {
				printRenderUpdate(out, filenames, msg)
			})
			if followErr != nil {
				return fmt.Errorf("follow renders: %w", followErr)
			}

			if failed := tracker.Failed(); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, token := range failed {
					names = append(names, filenames[token])
				}
				return fmt.Errorf("%d render(s) failed: %s", len(failed), strings.Join(names, ", "))
			}
			fmt.Fprintln(out, "All renders finished")
			return nil
		},
	}

	cmd.Flags().BoolVar(&watchAll, "all", false, "Watch every item still in flight")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait for renders (0 for no limit)")
	return cmd
}
