package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/videoforge/videoforge/internal/uploadclient"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [taskId]",
		Short: "fetch a task's conversion status",
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

			status, err := client.GetStatus(context.Background(), args[0], clientID)
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}
