package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/videoforge/videoforge/internal/uploadclient"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [taskId]",
		Short: "cancel an in-flight conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			clientID, _ := cmd.Flags().GetString("client-id")
			token, _ := cmd.Flags().GetString("token")

			opts := []uploadclient.Option{}
			if token != "" {
				opts = append(opts, uploadclient.WithOAuthToken(token))
			}
			client := uploadclient.New(server, opts...)

			if err := client.Cancel(context.Background(), args[0], clientID); err != nil {
				return err
			}
			fmt.Println("cancelled")
			return nil
		},
	}
}
