package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nftcreator/internal/creator"
)

func createCmd() *cobra.Command {
	var (
		name        string
		description string
		imageOut    string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate, store and mint one NFT from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}

			run, err := p.creator.Start(ctx, creator.Draft{Name: name, Description: description})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !asJSON {
				followProgress(out, p.creator, run)
			}

			final, runErr := run.Result()
			if imageOut != "" && final.Image != nil {
				if err := os.WriteFile(imageOut, final.Image.Data, 0o644); err != nil {
					return err
				}
			}

			view := p.creator.ViewOf(final)
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(view); err != nil {
					return err
				}
			} else {
				printResult(out, view)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "token name")
	cmd.Flags().StringVar(&description, "description", "", "token description, used as the image prompt")
	cmd.Flags().StringVar(&imageOut, "image-out", "", "write the generated image to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final status as JSON")
	return cmd
}

// followProgress prints each new status message until the run ends.
func followProgress(out io.Writer, c *creator.Creator, run *creator.Run) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	last := ""
	for {
		if v := c.View(); v.Busy && v.Message != last {
			last = v.Message
			fmt.Fprintln(out, last)
		}
		select {
		case <-run.Done():
			return
		case <-ticker.C:
		}
	}
}

func printResult(out io.Writer, v creator.View) {
	if v.Account != "" {
		fmt.Fprintf(out, "Account: %s (chain %s)\n", v.Account, v.ChainID)
	}
	if v.MetadataURL != "" {
		fmt.Fprintf(out, "Metadata: %s\n", v.MetadataURL)
	}
	if v.Minted {
		fmt.Fprintf(out, "Minted token %s in %s\n", v.TokenID, v.TxHash)
	} else if v.PendingTx != "" {
		fmt.Fprintf(out, "Transaction %s was sent but not confirmed\n", v.PendingTx)
	}
	if v.Error != nil {
		fmt.Fprintf(out, "Error (%s): %s\n", v.Error.Kind, v.Error.Message)
	}
}
