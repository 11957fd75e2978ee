package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/internal/blob"
	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/internal/export"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// blobConfig returns the blob settings with the filesystem root defaulting
// to <data dir>/published.
func (a *app) blobConfig() (blob.Config, error) {
	cfg := a.cfg.Blob
	if cfg.Driver == "" || blob.Driver(cfg.Driver) == blob.DriverFilesystem {
		if cfg.Root == "" {
			dataDir, err := a.resolveDataDir()
			if err != nil {
				return blob.Config{}, err
			}
			cfg.Root = filepath.Join(dataDir, "published")
		}
	}
	return cfg, nil
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <product-id>",
		Short: "Publish the public passport of a product",
		Long: `Publish writes the public passport of a product, as JSON and as a PNG
image, to the configured blob store (a local directory or an S3 bucket).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			renderer, err := export.NewRenderer(a.cfg.FontPath)
			if err != nil {
				return userError(fmt.Errorf("config: font_path: %w", err))
			}
			bcfg, err := a.blobConfig()
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				data, err := svc.Public(ctx, args[0])
				if err != nil {
					return err
				}
				store, err := blob.Open(ctx, bcfg)
				if err != nil {
					return fmt.Errorf("open blob store: %w", err)
				}
				pub, err := export.Publish(ctx, store, renderer, data)
				if err != nil {
					return err
				}
				a.logger.Info("passport published", zap.String("product_id", pub.ProductID))
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), pub)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n  json:  %s\n  image: %s\n", pub.ProductID, pub.JSON, pub.Image)
				return nil
			})
		},
	}
}
