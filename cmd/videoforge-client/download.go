package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/videoforge/videoforge/internal/uploadclient"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download [taskId] [destPath]",
		Short: "download a completed task's output file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			clientID, _ := cmd.Flags().GetString("client-id")
			token, _ := cmd.Flags().GetString("token")

			opts := []uploadclient.Option{}
			if token != "" {
				opts = append(opts, uploadclient.WithOAuthToken(token))
			}
			client := uploadclient.New(server, opts...)

			if err := client.Download(context.Background(), args[0], clientID, args[1]); err != nil {
				return err
			}
			fmt.Printf("downloaded to %s\n", args[1])
			return nil
		},
	}
}
