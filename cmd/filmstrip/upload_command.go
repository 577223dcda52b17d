package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"filmstrip/internal/client"
	"filmstrip/internal/ipc"
	"filmstrip/internal/ws"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var noWait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "upload <file...>",
		Short: "Upload images and watch their renders finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			paths := make([]string, 0, len(args))
			for _, arg := range args {
				absPath, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				info, err := os.Stat(absPath)
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("file does not exist: %s", absPath)
					}
					return fmt.Errorf("inspect file: %w", err)
				}
				if info.IsDir() {
					return fmt.Errorf("%s is a directory", absPath)
				}
				paths = append(paths, absPath)
			}

			bind, err := resolveAPIBind(ctx)
			if err != nil {
				return err
			}

			uploader := client.NewUploader("http://"+bind, nil)
			resp, err := uploader.Upload(cmd.Context(), paths)
			if err != nil {
				return err
			}

			for _, rejected := range resp.Rejected {
				fmt.Fprintf(out, "Rejected %s: %s\n", rejected.Filename, rejected.Reason)
			}
			tokens := make([]string, 0, len(resp.Accepted))
			filenames := make(map[string]string, len(resp.Accepted))
			for _, accepted := range resp.Accepted {
				fmt.Fprintf(out, "Uploaded %s\n", accepted.Filename)
				tokens = append(tokens, accepted.Token)
				filenames[accepted.Token] = accepted.Filename
			}
			if len(tokens) == 0 {
				return errors.New("no files were accepted")
			}
			if noWait {
				return nil
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
						if err := c.Process(token); err != nil {
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

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return after the upload without waiting for renders")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait for renders (0 for no limit)")
	return cmd
}

func printRenderUpdate(out io.Writer, filenames map[string]string, msg ws.Message) {
	name := filenames[msg.Token]
	if name == "" {
		name = msg.Token
	}
	switch msg.Type {
	case ws.TypeProgress:
		detail := strings.TrimSpace(msg.Message)
		if detail == "" {
			detail = msg.Stage
		}
		fmt.Fprintf(out, "%s: %s (%.0f%%)\n", name, detail, msg.Percent)
	case ws.TypeComplete:
		fmt.Fprintf(out, "%s: render complete -> %s\n", name, msg.VideoURL)
	case ws.TypeError:
		fmt.Fprintf(out, "%s: render failed: %s\n", name, msg.Error)
	}
}

// resolveAPIBind prefers the live daemon's reported bind address so the CLI
// follows the socket flag to the right process, then falls back to config.
func resolveAPIBind(ctx *commandContext) (string, error) {
	if ipcClient, err := ipc.Dial(ctx.socketPath()); err == nil {
		status, statusErr := ipcClient.Status()
		_ = ipcClient.Close()
		if statusErr == nil && status != nil {
			if bind := strings.TrimSpace(status.APIBind); bind != "" {
				return bind, nil
			}
		}
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return "", errors.New("no API bind address configured")
	}
	return bind, nil
}
