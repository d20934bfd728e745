// Command objectnetd runs the node manager and its local control-plane
// dispatcher: a long-lived process that creates, starts, stops and
// persists object-mesh nodes on behalf of external collaborators (the
// CLI, a GUI, a test driver) speaking the protocol in section 6.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/liberum-neto/objectnet/internal/objectnet/daemon"
	"github.com/liberum-neto/objectnet/internal/objectnet/manager"
	"github.com/liberum-neto/objectnet/pkg/utils"
)

func defaultNodesRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./objectnet-nodes"
	}
	return filepath.Join(home, ".objectnet", "nodes")
}

func defaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./objectnetd.sock"
	}
	return filepath.Join(home, ".objectnet", "objectnetd.sock")
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	lv, err := logrus.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		lv = logrus.InfoLevel
	}
	logrus.SetLevel(lv)
	log := logrus.NewEntry(logrus.StandardLogger())

	root := utils.EnvOrDefault("OBJECTNET_NODES_ROOT", defaultNodesRoot())
	socketPath := utils.EnvOrDefault("OBJECTNET_SOCKET", defaultSocketPath())
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return utils.Wrap(err, "create socket directory")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return utils.Wrap(err, "create nodes root")
	}

	mgr := manager.New(root, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.StartAll(ctx); err != nil {
		log.WithError(err).Warn("objectnetd: some persisted nodes failed to start")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("objectnetd: shutting down")
		if err := mgr.StopAll(context.Background()); err != nil {
			log.WithError(err).Warn("objectnetd: error stopping nodes")
		}
		cancel()
	}()

	d := daemon.NewDispatcher(mgr, log)
	log.Infof("objectnetd: listening on %s (nodes root %s)", socketPath, root)
	return daemon.Serve(ctx, socketPath, d, log)
}

func main() {
	root := &cobra.Command{
		Use:   "objectnetd",
		Short: "object mesh node manager daemon",
		RunE:  run,
	}
	root.PersistentFlags().String("logging.level", "info", "log level")
	viper.BindPFlag("logging.level", root.PersistentFlags().Lookup("logging.level"))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
