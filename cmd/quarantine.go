package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"wib-shield/internal/engine"
	"wib-shield/internal/journal"
	"wib-shield/internal/quarantine"
	"wib-shield/internal/remediation"
	"wib-shield/pkg/types"

	"github.com/spf13/cobra"
)

var (
	isolateForce bool
	recoverKill  bool
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Manage the quarantine vault",
	Long: `The vault lives in <data root>/quarantine and holds one <sha256>.qf file per
unique content. The data root defaults to the user data directory and can be
moved with WIB_DATA_DIR. Original paths and detections are kept in a separate
journal so restore can default to where a file came from.`,
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vault entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := openVault(nil)
		defer v.Close()

		paths, err := v.store.List()
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			colorGreen.Println("Quarantine is empty.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tORIGINAL PATH\tDETECTION\tQUARANTINED")
		for _, p := range paths {
			original, detection, when := "-", "-", "-"
			if v.journal != nil {
				if e, err := v.journal.Lookup(cmd.Context(), p); err == nil {
					original, detection = e.OriginalPath, e.Detection
					when = e.QuarantinedAt.Format("2006-01-02 15:04:05")
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", filepath.Base(p), original, detection, when)
		}
		return tw.Flush()
	},
}

var quarantineIsolateCmd = &cobra.Command{
	Use:   "isolate <file>",
	Short: "Scan a file and move it into the vault if it is detected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		scanEngine, err := engine.NewEngine(cfg, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize engine: %w", err)
		}
		detections, err := scanEngine.Scan([]string{path}, cfg.ScanOptions())
		if err != nil {
			return err
		}

		var d types.Detection
		switch {
		case len(detections) > 0:
			d = detections[0]
			printDetection(d)
		case isolateForce:
			d = types.Detection{
				Path:     path,
				Kind:     types.HeuristicKind{Description: "isolated manually"},
				Severity: types.SeverityHeuristic,
			}
		default:
			return fmt.Errorf("%s is clean; use --force to isolate it anyway", path)
		}

		v := openVault(nil)
		defer v.Close()
		return v.isolate(cmd.Context(), d)
	},
}

var quarantineRestoreCmd = &cobra.Command{
	Use:   "restore <vault-file> [destination]",
	Short: "Copy a vault entry back out; defaults to its original path",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := openVault(nil)
		defer v.Close()

		qpath := resolveVaultPath(v.store, args[0])
		var dest string
		if len(args) == 2 {
			dest = args[1]
		} else if v.journal != nil {
			e, err := v.journal.Lookup(cmd.Context(), qpath)
			if err != nil && !errors.Is(err, journal.ErrNotFound) {
				return err
			}
			dest = e.OriginalPath
		}
		if dest == "" {
			return fmt.Errorf("no destination given and no original path recorded for %s", filepath.Base(qpath))
		}

		if err := v.store.Restore(qpath, dest); err != nil {
			return err
		}
		if v.journal != nil {
			if err := v.journal.RecordRestore(cmd.Context(), qpath, dest); err != nil && !errors.Is(err, journal.ErrNotFound) {
				return err
			}
		}
		colorGreen.Printf("Restored %s -> %s\n", filepath.Base(qpath), dest)
		return nil
	},
}

var quarantineDeleteCmd = &cobra.Command{
	Use:   "delete <vault-file>",
	Short: "Permanently delete a vault entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := openVault(nil)
		defer v.Close()

		qpath := resolveVaultPath(v.store, args[0])
		if err := v.store.Delete(qpath); err != nil {
			return err
		}
		if v.journal != nil {
			if err := v.journal.Forget(cmd.Context(), qpath); err != nil {
				return err
			}
		}
		colorGreen.Printf("Deleted %s\n", filepath.Base(qpath))
		return nil
	},
}

// resolveVaultPath accepts a full vault path, a file name or a bare digest.
func resolveVaultPath(store *quarantine.Store, arg string) string {
	if filepath.IsAbs(arg) || filepath.Dir(arg) != "." {
		return arg
	}
	if quarantine.HashOf(arg) != "" {
		return filepath.Join(store.Dir(), arg)
	}
	return store.PathFor(arg)
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Kill known RAT processes and remove their persistence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := remediation.ForOS(runtime.GOOS)
		colorCyan.Printf("Running %s recovery...\n", r.Name())

		var (
			actions []string
			err     error
		)
		if recoverKill {
			actions, err = r.KillKnownProcesses(cmd.Context())
		} else {
			actions, err = r.Recover(cmd.Context())
		}
		for _, a := range actions {
			fmt.Printf("  -> %s\n", a)
		}
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			colorGreen.Println("Nothing to clean up.")
		}
		return nil
	},
}

func init() {
	quarantineIsolateCmd.Flags().BoolVar(&isolateForce, "force", false, "Isolate even if nothing is detected")
	recoverCmd.Flags().BoolVar(&recoverKill, "kill-only", false, "Only kill processes, leave persistence alone")

	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantineIsolateCmd)
	quarantineCmd.AddCommand(quarantineRestoreCmd)
	quarantineCmd.AddCommand(quarantineDeleteCmd)
}
