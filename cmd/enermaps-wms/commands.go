package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/enermaps/enermaps-wms/internal/cache/legendcache"
	"github.com/enermaps/enermaps-wms/internal/cache/redisstore"
	"github.com/enermaps/enermaps-wms/internal/core/config"
	"github.com/enermaps/enermaps-wms/internal/layer/fsstore"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

func layersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the layers stored in the data directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := fsstore.New(cfg.DataDir, fsstore.Options{Logger: newLogger(cfg, "cli")})
			if err != nil {
				return err
			}
			layers, err := store.ListLayers(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tQUERYABLE\tTITLE")
			for _, l := range layers {
				fmt.Fprintf(tw, "%s\t%t\t%s\n", l.Name, l.Queryable, l.Title)
			}
			return tw.Flush()
		},
	}
}

func legendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legend",
		Short: "Inspect the shared legend cache",
	}

	status := &cobra.Command{
		Use:   "status LAYER...",
		Short: "Show the cached legend entry of each layer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), func(a legendcache.Admin) error {
				st, err := a.Status(cmd.Context(), args)
				if err != nil {
					return err
				}
				return printStatus(cmd.OutOrStdout(), st)
			})
		},
	}

	evict := &cobra.Command{
		Use:   "evict LAYER...",
		Short: "Drop the cached legend of each layer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), func(a legendcache.Admin) error {
				return a.Evict(cmd.Context(), args)
			})
		},
	}

	list := &cobra.Command{
		Use:   "keys",
		Short: "List the legend keys of the shared tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdmin(cmd.Context(), func(a legendcache.Admin) error {
				ks, err := a.Keys(cmd.Context())
				if err != nil {
					return err
				}
				for _, k := range ks {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}

	var ttl time.Duration
	load := &cobra.Command{
		Use:   "import FILE",
		Short: "Write legends from a JSON object of layer name to legend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var legends map[string]*legend.Legend
			if err := json.Unmarshal(b, &legends); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return withAdmin(cmd.Context(), func(a legendcache.Admin) error {
				if err := a.Import(cmd.Context(), legends, time.Now(), ttl); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d legends\n", len(legends))
				return nil
			})
		},
	}
	load.Flags().DurationVar(&ttl, "ttl", legend.DefaultFreshness, "expiry of the imported entries")

	cmd.AddCommand(status, list, evict, load)
	return cmd
}

func withAdmin(ctx context.Context, fn func(legendcache.Admin) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is not set")
	}
	rc, err := redisstore.New(ctx, cfg.RedisAddr, redisOptions(cfg)...)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return fn(legendcache.Admin{Store: rc})
}

func printStatus(w io.Writer, st []legendcache.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tCACHED\tENTRIES\tEXPIRES IN\tFETCHED")
	for _, s := range st {
		fetched, expires := "-", "-"
		if s.Cached {
			fetched = s.FetchedAt.Format(time.RFC3339)
		}
		if s.ExpiresIn > 0 {
			expires = s.ExpiresIn.Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\t%s\n", s.Layer, s.Cached, s.Entries, expires, fetched)
	}
	return tw.Flush()
}
