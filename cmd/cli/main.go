// Command objectnet-cli is a thin, external client over objectnetd's
// control plane: each invocation opens one connection, sends one
// request, prints the response, and exits. It is a demonstration
// client, not a first-class deliverable — the daemon and its
// dispatcher are the real product.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/liberum-neto/objectnet/internal/objectnet/daemon"
	"github.com/liberum-neto/objectnet/pkg/utils"
)

func defaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./objectnetd.sock"
	}
	return filepath.Join(home, ".objectnet", "objectnetd.sock")
}

func call(cmd *cobra.Command, req daemon.Request) (daemon.Response, error) {
	socketPath := utils.EnvOrDefault("OBJECTNET_SOCKET", defaultSocketPath())
	raw, err := sendRequest(socketPath, daemon.EncodeRequest(req))
	if err != nil {
		return daemon.Response{}, err
	}
	return daemon.DecodeResponse(raw)
}

func printResult(cmd *cobra.Command, resp daemon.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.Kind == daemon.KindErr {
		return fmt.Errorf("%s", resp.Err)
	}
	switch resp.Kind {
	case daemon.KindNodeList:
		for _, name := range resp.NodeList {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	case daemon.KindPublished:
		fmt.Fprintln(cmd.OutOrStdout(), resp.PublishedID)
	case daemon.KindDownloaded:
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", resp.Downloaded.Name, len(resp.Downloaded.Content))
	case daemon.KindProviders:
		for _, p := range resp.ProviderIDs {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
	case daemon.KindPeerID:
		fmt.Fprintln(cmd.OutOrStdout(), resp.PeerID)
	case daemon.KindDeleted:
		fmt.Fprintln(cmd.OutOrStdout(), resp.DeletedMsg)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "objectnet-cli", Short: "thin client for objectnetd"}

	nodeCmd := &cobra.Command{Use: "node", Short: "node lifecycle commands"}

	nodeCreate := &cobra.Command{
		Use:  "create [name]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, daemon.Request{Kind: daemon.KindNewNode, NewNode: daemon.NewNodeRequest{Name: args[0]}})
			return printResult(cmd, resp, err)
		},
	}
	nodeStart := &cobra.Command{
		Use:  "start [name]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, daemon.Request{Kind: daemon.KindStartNode, StartNode: daemon.StartNodeRequest{Name: args[0]}})
			return printResult(cmd, resp, err)
		},
	}
	nodeStop := &cobra.Command{
		Use:  "stop [name]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, daemon.Request{Kind: daemon.KindStopNode, StopNode: daemon.StopNodeRequest{Name: args[0]}})
			return printResult(cmd, resp, err)
		},
	}
	nodeList := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, daemon.Request{Kind: daemon.KindListNodes})
			return printResult(cmd, resp, err)
		},
	}
	nodeCmd.AddCommand(nodeCreate, nodeStart, nodeStop, nodeList)

	publish := &cobra.Command{
		Use:  "publish [node] [path]",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.Request{Kind: daemon.KindPublishFile, PublishFile: daemon.PublishFileRequest{Node: args[0], Path: args[1]}}
			resp, err := call(cmd, req)
			return printResult(cmd, resp, err)
		},
	}
	download := &cobra.Command{
		Use:  "download [node] [id]",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.Request{Kind: daemon.KindDownloadFile, DownloadFile: daemon.DownloadFileRequest{Node: args[0], ID: args[1]}}
			resp, err := call(cmd, req)
			return printResult(cmd, resp, err)
		},
	}
	providers := &cobra.Command{
		Use:  "providers [node] [id]",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.Request{Kind: daemon.KindGetProviders, GetProviders: daemon.GetProvidersRequest{Node: args[0], ID: args[1]}}
			resp, err := call(cmd, req)
			return printResult(cmd, resp, err)
		},
	}
	dial := &cobra.Command{
		Use:  "dial [node] [peer_id] [addr]",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.Request{Kind: daemon.KindDial, Dial: daemon.DialRequest{Node: args[0], PeerID: args[1], Addr: args[2]}}
			resp, err := call(cmd, req)
			return printResult(cmd, resp, err)
		},
	}
	deleteCmd := &cobra.Command{
		Use:  "delete [node] [id]",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.Request{Kind: daemon.KindDeleteObject, DeleteObject: daemon.DeleteObjectRequest{Node: args[0], ObjectID: args[1]}}
			resp, err := call(cmd, req)
			return printResult(cmd, resp, err)
		},
	}
	peerID := &cobra.Command{
		Use:  "peer-id [node]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.Request{Kind: daemon.KindGetPeerID, GetPeerID: daemon.GetPeerIDRequest{Node: args[0]}}
			resp, err := call(cmd, req)
			return printResult(cmd, resp, err)
		},
	}

	root.AddCommand(nodeCmd, publish, download, providers, dial, deleteCmd, peerID)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
