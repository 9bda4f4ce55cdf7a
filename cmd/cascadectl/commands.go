package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"zhulink-cascade/internal/app"
	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/services"
	"zhulink-cascade/internal/utils"

	"github.com/spf13/cobra"
)

// appFactory 测试时替换为内存 store
var appFactory = func(cmd *cobra.Command, conf *config.AppConfig) (*app.App, error) {
	return app.New(cmd.Context(), conf)
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "cascadectl",
		Short:        "Maintenance commands for soft-deleted forum content",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	load := func(cmd *cobra.Command) (*app.App, error) {
		conf, err := config.Parse(configPath)
		if err != nil {
			return nil, err
		}
		utils.SetupLogger(conf.Log)
		return appFactory(cmd, conf)
	}

	root.AddCommand(newPurgeCmd(load), newSweepCmd(load), newRecountCmd(load))
	return root
}

type loader func(cmd *cobra.Command) (*app.App, error)

func newPurgeCmd(load loader) *cobra.Command {
	var kind string
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete rows soft-deleted longer than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if days < 0 {
				days = a.Conf.Reaper.RetentionDays
			}
			if kind == "" {
				purged, err := a.Reaper.PurgeAll(cmd.Context(), days)
				if perr := printJSON(cmd.OutOrStdout(), purged); perr != nil {
					return perr
				}
				return err
			}

			k, err := models.ParseKind(kind)
			if err != nil {
				return err
			}
			n, err := a.Reaper.Purge(cmd.Context(), k, days)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[models.Kind]int64{k: n})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "forum|post|comment|vote (default: all, in that order)")
	cmd.Flags().IntVar(&days, "days", -1, "retention days (default: reaper.retention_days)")
	return cmd
}

func newSweepCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-run cascades for deleted content that still has live descendants",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newRecountCmd(load loader) *cobra.Command {
	var postID, forumID uint

	cmd := &cobra.Command{
		Use:   "recount",
		Short: "Rebuild denormalized counters from live children",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (postID == 0) == (forumID == 0) {
				return errors.New("exactly one of --post or --forum is required")
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var res services.RebuildResult
			if postID != 0 {
				res, err = a.Rebuilder.RebuildPost(cmd.Context(), postID)
			} else {
				res, err = a.Rebuilder.RebuildForum(cmd.Context(), forumID)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().UintVar(&postID, "post", 0, "post id")
	cmd.Flags().UintVar(&forumID, "forum", 0, "forum id")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
