package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftcreator/internal/storage"
)

func checkCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "check <cid>",
		Short: "Report whether stored content is available yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := storage.NewClient(cfg.Storage.Endpoint, cfg.Storage.APIKey, cfg.Storage.Gateway, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), wait+30*time.Second)
			defer cancel()

			for {
				avail, err := client.Check(ctx, args[0])
				if err != nil {
					return err
				}
				if avail.Available() || !avail.Pending() || wait == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n%s\n", avail.CID, avail.Status, storage.MetadataURL(cfg.Storage.Gateway, avail.CID))
					return nil
				}
				logger.Debug("content still pending", zap.String("cid", avail.CID), zap.String("status", string(avail.Status)))
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return fmt.Errorf("%s still %s: %w", avail.CID, avail.Status, ctx.Err())
				}
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep polling while the content is pending, up to this long")
	return cmd
}
