package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/videoforge/videoforge/internal/uploadclient"
)

func newUploadCmd() *cobra.Command {
	var codec, container, resolution string
	var concurrency int
	var serveStatus bool

	cmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "upload a file and start its conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			clientID, _ := cmd.Flags().GetString("client-id")
			token, _ := cmd.Flags().GetString("token")

			opts := []uploadclient.Option{uploadclient.WithConcurrency(concurrency)}
			if token != "" {
				opts = append(opts, uploadclient.WithOAuthToken(token))
			}
			client := uploadclient.New(server, opts...)

			var statusSrv *statusServer
			if serveStatus {
				statusSrv = newStatusServer()
				go statusSrv.ListenAndServe(":7070")
			}

			conversionRequest := map[string]interface{}{
				"codec":      codec,
				"container":  container,
				"resolution": resolution,
			}

			uploadID := uuid.New().String()
			result, err := client.UploadFile(context.Background(), uploadID, args[0], clientID, conversionRequest, func(p uploadclient.Progress) {
				pct := 0
				if p.TotalBytes > 0 {
					pct = int(p.UploadedBytes * 100 / p.TotalBytes)
				}
				fmt.Printf("\r%s: %d%% (%d/%d bytes)", p.Phase, pct, p.UploadedBytes, p.TotalBytes)
				if statusSrv != nil {
					statusSrv.update(p)
				}
			})
			fmt.Println()
			if err != nil {
				return err
			}

			fmt.Printf("task started: %s (%s)\n", result.TaskID, result.TaskName)
			return nil
		},
	}

	cmd.Flags().StringVar(&codec, "codec", "h264", "target video codec")
	cmd.Flags().StringVar(&container, "container", "mp4", "target container format")
	cmd.Flags().StringVar(&resolution, "resolution", "1080p", "target resolution")
	cmd.Flags().IntVar(&concurrency, "concurrency", uploadclient.DefaultConcurrency, "max concurrent chunk uploads")
	cmd.Flags().BoolVar(&serveStatus, "serve-status", false, "serve a local debug status page while uploading")

	return cmd
}
