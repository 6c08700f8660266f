package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/listenup-mirrors/internal/backup"
)

var (
	restoreMerge      bool
	restoreKeepBackup bool
	restoreDryRun     bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export and restore the mirror configuration",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [path]",
	Short: "Write the configuration to a zip archive",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives in the backup directory",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Restore the configuration from an archive",
	Long: `restore replaces the configuration with the archive's contents. With
--merge, archive entities are added to the existing configuration and ID
collisions keep the local entity unless --keep-backup is given.

Restored mirrors are not re-synced; run "mirrorctl sync" and
"mirrorctl cleanup" afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

func init() {
	backupRestoreCmd.Flags().BoolVar(&restoreMerge, "merge", false, "Merge into the existing configuration")
	backupRestoreCmd.Flags().BoolVar(&restoreKeepBackup, "keep-backup", false, "On ID collisions, prefer the archive (with --merge)")
	backupRestoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Report what would change without saving")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	return withContainer(func(injector do.Injector) error {
		svc, err := do.Invoke[*backup.Service](injector)
		if err != nil {
			return err
		}
		var path string
		if len(args) == 1 {
			path = args[0]
		}
		res, err := svc.Create(cmd.Context(), path)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%d alternatives, %d mirrors, %d bytes)\n",
			res.Path, res.Counts.Alternatives, res.Counts.Mirrors, res.Size)
		fmt.Println(dimStyle.Render("sha256 " + res.Checksum))
		return nil
	})
}

func runBackupList(cmd *cobra.Command, _ []string) error {
	return withContainer(func(injector do.Injector) error {
		svc, err := do.Invoke[*backup.Service](injector)
		if err != nil {
			return err
		}
		backups, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println(dimStyle.Render("No backups."))
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, headerStyle.Render("ID")+"\tCREATED\tSIZE\tPATH")
		for _, b := range backups {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Size, b.Path)
		}
		return tw.Flush()
	})
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	opts := backup.RestoreOptions{
		Mode:          backup.RestoreModeFull,
		MergeStrategy: backup.MergeKeepLocal,
		DryRun:        restoreDryRun,
	}
	if restoreMerge {
		opts.Mode = backup.RestoreModeMerge
	}
	if restoreKeepBackup {
		opts.MergeStrategy = backup.MergeKeepBackup
	}

	return withContainer(func(injector do.Injector) error {
		svc, err := do.Invoke[*backup.Service](injector)
		if err != nil {
			return err
		}
		res, err := svc.Restore(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}

		verb := "Restored"
		if res.DryRun {
			verb = "Would restore"
		}
		fmt.Printf("%s %d alternatives (%d mirrors), %d group mappings, %d assignments; %d skipped\n",
			verb, res.Imported.Alternatives, res.Imported.Mirrors, res.Imported.GroupMappings,
			res.Imported.Assignments, res.Skipped)
		for _, e := range res.Errors {
			fmt.Printf("%s %s %s: %s\n", errorStyle.Render("skipped"), e.EntityType, e.EntityID, e.Error)
		}
		return nil
	})
}
