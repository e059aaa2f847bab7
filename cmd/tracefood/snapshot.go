package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tracefood/internal/core"
)

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export, archive and restore the serialized contract state",
	}
	cmd.AddCommand(newSnapshotExportCmd(a), newSnapshotListCmd(a), newSnapshotRestoreCmd(a), newSnapshotURLCmd(a), newSnapshotPruneCmd(a))
	return cmd
}

func newSnapshotExportCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the state to the archive, a file, or stdout with --file -",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRuntime(a, cmd, func(rt *runtime) error {
				snap := rt.svc.ExportState(ctx)
				switch file {
				case "-":
					return printJSON(cmd.OutOrStdout(), snap)
				case "":
				default:
					b, err := json.MarshalIndent(snap, "", "  ")
					if err != nil {
						return err
					}
					if err := os.WriteFile(file, b, 0o644); err != nil {
						return fmt.Errorf("write snapshot: %w", err)
					}
					pterm.Fprintln(cmd.ErrOrStderr(), pterm.Success.Sprintf("wrote %d lots to %s", len(snap.LotIDs), file))
					return nil
				}
				arc, err := a.archive(ctx)
				if err != nil {
					return err
				}
				entry, err := arc.Save(ctx, snap)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entry)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to this path instead of the archive; - for stdout")
	return cmd
}

func newSnapshotListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived snapshots oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arc, err := a.archive(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := arc.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			data := pterm.TableData{{"KEY", "CREATED", "LOTS", "INITIALIZED", "BYTES"}}
			for _, e := range entries {
				data = append(data, []string{
					e.Key,
					e.CreatedAt.UTC().Format(time.RFC3339),
					strconv.Itoa(e.Lots),
					strconv.FormatBool(e.Initialized),
					strconv.FormatInt(e.Size, 10),
				})
			}
			out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newSnapshotRestoreCmd(a *app) *cobra.Command {
	var caller, file string
	cmd := &cobra.Command{
		Use:   "restore [archive-key]",
		Short: "Load a snapshot into an empty store (latest archived entry by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var snap core.Snapshot
			switch {
			case file != "":
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read snapshot: %w", err)
				}
				if err := json.Unmarshal(b, &snap); err != nil {
					return fmt.Errorf("decode snapshot: %w", err)
				}
			default:
				arc, err := a.archive(ctx)
				if err != nil {
					return err
				}
				key := ""
				if len(args) == 1 {
					key = args[0]
				} else {
					latest, ok, err := arc.Latest(ctx)
					if err != nil {
						return err
					}
					if !ok {
						return errors.New("archive is empty")
					}
					key = latest.Key
				}
				if snap, err = arc.Load(ctx, key); err != nil {
					return err
				}
			}
			return withRuntime(a, cmd, func(rt *runtime) error {
				if _, err := rt.svc.RestoreState(ctx, caller, snap); err != nil {
					return err
				}
				pterm.Fprintln(cmd.ErrOrStderr(), pterm.Success.Sprintf("restored %d lots", len(snap.LotIDs)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caller, "as", "owner", "calling account")
	cmd.Flags().StringVarP(&file, "file", "f", "", "restore from this JSON file instead of the archive")
	return cmd
}

func newSnapshotURLCmd(a *app) *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "url <archive-key>",
		Short: "Print a download link for an archived snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			arc, err := a.archive(ctx)
			if err != nil {
				return err
			}
			if _, err := arc.Store().Head(ctx, args[0]); err != nil {
				return err
			}
			u, err := arc.URL(ctx, args[0], expiry)
			if err != nil {
				return fmt.Errorf("snapshot url: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
			return err
		},
	}
	cmd.Flags().DurationVar(&expiry, "expiry", 15*time.Minute, "lifetime of signed links")
	return cmd
}

func newSnapshotPruneCmd(a *app) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived snapshots, keeping the newest --keep entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			arc, err := a.archive(ctx)
			if err != nil {
				return err
			}
			removed, err := arc.Prune(ctx, keep)
			if err != nil {
				return err
			}
			for _, e := range removed {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), e.Key); err != nil {
					return err
				}
			}
			pterm.Fprintln(cmd.ErrOrStderr(), pterm.Success.Sprintf("pruned %d snapshots", len(removed)))
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "number of newest snapshots to keep")
	return cmd
}
