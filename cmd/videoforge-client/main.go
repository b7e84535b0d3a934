package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "videoforge-client",
		Short: "drives the chunked upload protocol against a videoforge server",
	}

	root.PersistentFlags().String("server", "http://localhost:8080", "base URL of the videoforge server")
	root.PersistentFlags().String("client-id", "", "client identity sent as X-Client-Id")
	root.PersistentFlags().String("token", "", "optional OAuth2 bearer token for a gateway in front of the server")

	root.AddCommand(newUploadCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCancelCmd())
	root.AddCommand(newDownloadCmd())

	return root
}
