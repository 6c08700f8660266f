package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/listenup-mirrors/internal/di/providers"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List language alternatives and their mirrors",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var validateCmd = &cobra.Command{
	Use:   "validate <sourceLibraryId> <targetPath>",
	Short: "Check whether a mirror could be created at a path",
	Long: `validate runs the same checks as adding a mirror (source exists, no
path overlap, same filesystem) without creating anything. With --alternative
the target must also lie inside that alternative's destination base path.`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

var syncCmd = &cobra.Command{
	Use:   "sync [alternativeId]",
	Short: "Sync the mirrors of one alternative, or of all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSync,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove mirrors whose source or target library is gone",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

var validateAlternative string

func init() {
	validateCmd.Flags().StringVar(&validateAlternative, "alternative", "", "Alternative that will own the mirror")
	rootCmd.AddCommand(listCmd, validateCmd, syncCmd, cleanupCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	return withContainer(func(injector do.Injector) error {
		svc, err := do.Invoke[*providers.AlternativeServiceHandle](injector)
		if err != nil {
			return err
		}

		alts := svc.ListAlternatives(cmd.Context())
		if len(alts) == 0 {
			fmt.Println(dimStyle.Render("No language alternatives configured."))
			return nil
		}

		for _, alt := range alts {
			fmt.Printf("%s  %s (%s)  %s\n",
				headerStyle.Render(alt.Name), alt.ID, alt.LanguageCode, dimStyle.Render(alt.DestinationBasePath))
			if len(alt.Mirrors) == 0 {
				fmt.Println("  no mirrors")
				continue
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, m := range alt.Mirrors {
				files := "-"
				if m.LastSyncFileCount != nil {
					files = fmt.Sprint(*m.LastSyncFileCount)
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
					m.ID, m.SourceLibraryName, m.TargetPath, files, renderStatus(m.Status))
				if m.LastError != "" {
					fmt.Fprintf(tw, "  \t%s\t\t\t\n", errorStyle.Render(m.LastError))
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		return nil
	})
}

func runValidate(cmd *cobra.Command, args []string) error {
	return withContainer(func(injector do.Injector) error {
		svc, err := do.Invoke[*providers.AlternativeServiceHandle](injector)
		if err != nil {
			return err
		}
		if err := svc.ValidateMirror(cmd.Context(), validateAlternative, args[0], args[1]); err != nil {
			fmt.Printf("%s %v\n", errorStyle.Render("invalid:"), err)
			return err
		}
		fmt.Println(okStyle.Render("valid"))
		return nil
	})
}

func runSync(cmd *cobra.Command, args []string) error {
	return withContainer(func(injector do.Injector) error {
		svc, err := do.Invoke[*providers.AlternativeServiceHandle](injector)
		if err != nil {
			return err
		}

		var result *mirror.BatchResult
		if len(args) == 1 {
			result, err = syncOne(cmd.Context(), injector, args[0])
			if err == nil {
				err = svc.ReconcileAccess(cmd.Context())
			}
		} else {
			result, err = svc.SyncAll(cmd.Context())
		}
		if result != nil {
			printBatch(result)
		}
		if err != nil {
			return err
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d mirror(s) failed to sync", len(result.Failed))
		}
		return nil
	})
}

// syncOne runs the engine directly so progress can be shown while it waits.
func syncOne(ctx context.Context, injector do.Injector, alternativeID string) (*mirror.BatchResult, error) {
	engine, err := do.Invoke[*mirror.Engine](injector)
	if err != nil {
		return nil, err
	}
	return engine.SyncAlternative(ctx, alternativeID, func(mirrorID string, percent float64) {
		fmt.Printf("\r%s %5.1f%%", mirrorID, percent)
		if percent >= 100 {
			fmt.Println()
		}
	})
}

func printBatch(result *mirror.BatchResult) {
	ids := make([]string, 0, len(result.Synced))
	for id := range result.Synced {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("MIRROR")+"\tADDED\tREMOVED\tFAILED\tFILES")
	for _, id := range ids {
		r := result.Synced[id]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", id, r.Added, r.Removed, r.Failed, r.FileCount)
	}
	_ = tw.Flush()

	for id, err := range result.Failed {
		fmt.Printf("%s %s: %v\n", errorStyle.Render("failed"), id, err)
	}
	fmt.Printf("%d synced, %d failed\n", len(result.Synced), len(result.Failed))
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	return withContainer(func(injector do.Injector) error {
		svc, err := do.Invoke[*providers.AlternativeServiceHandle](injector)
		if err != nil {
			return err
		}
		result, err := svc.TriggerCleanup(cmd.Context())
		if err != nil {
			return err
		}

		if len(result.Orphans) == 0 {
			fmt.Println(okStyle.Render("No orphaned mirrors."))
		}
		for _, o := range result.Orphans {
			state := okStyle.Render("removed")
			if !o.Removed {
				state = errorStyle.Render("kept: " + o.Error)
			}
			fmt.Printf("%s  %s  %s\n", o.MirrorID, o.Description, state)
		}
		for _, l := range result.Unmirrored {
			fmt.Printf("%s %s\n", dimStyle.Render("unmirrored:"), l.Name)
		}
		return nil
	})
}
