package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"iap-coordinator/internal/iap"
	"iap-coordinator/internal/repository"
)

type storageOptions struct {
	storageType string
	dir         string
	location    string
	output      string
}

type opener func(o *storageOptions) (repository.Backend, error)

// recordView is what show prints.
type recordView struct {
	Location   string   `json:"location" yaml:"location"`
	Exists     bool     `json:"exists" yaml:"exists"`
	Version    int      `json:"version" yaml:"version"`
	ProductIDs []string `json:"product_ids" yaml:"product_ids"`
	Skipped    int      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func newRootCommand(open opener, out io.Writer) *cobra.Command {
	o := &storageOptions{}

	root := &cobra.Command{
		Use:          "iapctl",
		Short:        "Inspect and repair the purchased-products record",
		Long:         `iapctl reads and rewrites the purchased-products record used by iapd, on any configured storage backend.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	flags := root.PersistentFlags()
	flags.StringVar(&o.storageType, "storage-type", "", "storage backend (file, sqlite, postgres, mysql, redis); defaults to STORAGE_TYPE")
	flags.StringVar(&o.dir, "dir", "", "directory for the file backend; defaults to STORAGE_DIR")
	flags.StringVar(&o.location, "location", "", "record location; defaults to STORAGE_LOCATION")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored purchase record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd.Context(), open, o, func(ctx context.Context, b repository.Backend) error {
				view, err := readView(ctx, b, o.location)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), o.output, view)
			})
		},
	}
	show.Flags().StringVarP(&o.output, "output", "o", "text", "output format: text, json or yaml")

	add := &cobra.Command{
		Use:   "add PRODUCT_ID...",
		Short: "Mark products as purchased",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateIDs(args); err != nil {
				return err
			}
			return withStore(cmd.Context(), open, o, func(ctx context.Context, s *iap.PurchaseStore) error {
				for _, id := range args {
					if err := s.MarkPurchased(ctx, id); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d products purchased\n", s.Len())
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke PRODUCT_ID...",
		Short: "Remove products from the purchased set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), open, o, func(ctx context.Context, s *iap.PurchaseStore) error {
				if err := s.Revoke(ctx, args); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d products purchased\n", s.Len())
				return nil
			})
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite the record in the current format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd.Context(), open, o, func(ctx context.Context, b repository.Backend) error {
				view, err := readView(ctx, b, o.location)
				if err != nil {
					return err
				}
				if !view.Exists {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing stored\n", view.Location)
					return nil
				}
				if view.Version == iap.RecordVersion && view.Skipped == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: already at version %d\n", view.Location, iap.RecordVersion)
					return nil
				}
				data, err := iap.EncodeRecord(view.ProductIDs)
				if err != nil {
					return err
				}
				if err := b.Write(ctx, view.Location, data); err != nil {
					return fmt.Errorf("failed to write %s: %w", view.Location, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d -> %d, %d products, %d dropped\n",
					view.Location, view.Version, iap.RecordVersion, len(view.ProductIDs), view.Skipped)
				return nil
			})
		},
	}

	root.AddCommand(show, add, revoke, migrate)
	return root
}

func withBackend(ctx context.Context, open opener, o *storageOptions, fn func(context.Context, repository.Backend) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(o)
	if err != nil {
		return err
	}
	defer b.Close()
	if o.location == "" {
		o.location = iap.DefaultLocation
	}
	return fn(ctx, b)
}

func withStore(ctx context.Context, open opener, o *storageOptions, fn func(context.Context, *iap.PurchaseStore) error) error {
	return withBackend(ctx, open, o, func(ctx context.Context, b repository.Backend) error {
		s := iap.NewPurchaseStore(b, o.location)
		if _, err := s.Load(ctx); err != nil {
			return fmt.Errorf("refusing to overwrite unreadable record: %w", err)
		}
		return fn(ctx, s)
	})
}

func readView(ctx context.Context, b repository.Backend, location string) (*recordView, error) {
	view := &recordView{Location: location, ProductIDs: []string{}}

	data, err := b.Read(ctx, location)
	if errors.Is(err, repository.ErrNotFound) {
		view.Version = iap.RecordVersion
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	ids, version, skipped, err := iap.DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	view.Exists = true
	view.Version = version
	view.Skipped = skipped
	view.ProductIDs = append(view.ProductIDs, ids...)
	return view, nil
}

func validateIDs(ids []string) error {
	for _, id := range ids {
		if !iap.ValidProductID(id) {
			return fmt.Errorf("invalid product id %q", id)
		}
	}
	return nil
}

func render(w io.Writer, format string, view *recordView) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(view)
	case "text", "":
		if !view.Exists {
			fmt.Fprintf(w, "%s: nothing stored\n", view.Location)
			return nil
		}
		fmt.Fprintf(w, "%s (version %d, %d products)\n", view.Location, view.Version, len(view.ProductIDs))
		for _, id := range view.ProductIDs {
			fmt.Fprintf(w, "  %s\n", id)
		}
		if view.Skipped > 0 {
			fmt.Fprintf(w, "%d malformed entries skipped\n", view.Skipped)
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
