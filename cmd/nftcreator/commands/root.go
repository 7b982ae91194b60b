package commands

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftcreator/internal/config"
	"nftcreator/internal/logging"
)

var (
	verbose bool
	pretty  bool
	dryRun  bool

	logger *zap.Logger
	cfg    *config.AppConfig
)

func Execute() error {
	root := &cobra.Command{
		Use:          "nftcreator",
		Short:        "Turn a description into an image, store it and mint it as an NFT",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(verbose, pretty)
			if err != nil {
				return err
			}
			logger = l

			c, err := config.Load()
			switch {
			case err == nil:
				cfg = c
			case errors.Is(err, fs.ErrNotExist):
				// Without a network mapping every chain is unsupported; the
				// wallet reports that when a submission starts.
				logger.Warn("network mapping not found", zap.Error(err))
				cfg = config.FromEnv()
			default:
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable console logs")
	root.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "use in-process fakes instead of the image, storage and chain services")

	root.AddCommand(serveCmd(), createCmd(), checkCmd())
	return root.Execute()
}
