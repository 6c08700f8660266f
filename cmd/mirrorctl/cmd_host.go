package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/listenup-mirrors/internal/di/providers"
	"github.com/listenupapp/listenup-mirrors/internal/host"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage the reference host catalog",
	Long: `host edits the sqlite catalog that stands in for the media server:
libraries, users and LDAP group membership.`,
}

var librariesCmd = &cobra.Command{
	Use:   "libraries",
	Short: "List host libraries",
	Args:  cobra.NoArgs,
	RunE:  runLibraries,
}

var addLibraryCmd = &cobra.Command{
	Use:   "add-library <name> <collectionType> <path>...",
	Short: "Create a library with one or more paths",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runAddLibrary,
}

var addUserCmd = &cobra.Command{
	Use:   "add-user <name>",
	Short: "Create a user with access to all libraries",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddUser,
}

var addGroupCmd = &cobra.Command{
	Use:   "add-to-group <userId> <groupDN>",
	Short: "Record an LDAP group membership for a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runAddToGroup,
}

var refreshesCmd = &cobra.Command{
	Use:   "refreshes",
	Short: "List queued library refreshes",
	Args:  cobra.NoArgs,
	RunE:  runRefreshes,
}

func init() {
	hostCmd.AddCommand(librariesCmd, addLibraryCmd, addUserCmd, addGroupCmd, refreshesCmd)
	rootCmd.AddCommand(hostCmd)
}

func runLibraries(cmd *cobra.Command, _ []string) error {
	return withContainer(func(injector do.Injector) error {
		h, err := do.Invoke[*providers.HostHandle](injector)
		if err != nil {
			return err
		}
		libs, err := h.ListLibraries(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, headerStyle.Render("ID")+"\tNAME\tTYPE\tPATHS")
		for _, l := range libs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, l.Name, l.CollectionType, strings.Join(l.Paths, ", "))
		}
		return tw.Flush()
	})
}

func runAddLibrary(cmd *cobra.Command, args []string) error {
	name, collectionType, paths := args[0], args[1], args[2:]
	return withContainer(func(injector do.Injector) error {
		h, err := do.Invoke[*providers.HostHandle](injector)
		if err != nil {
			return err
		}
		lib, err := h.CreateLibrary(cmd.Context(), name, collectionType, host.LibraryOptions{
			Enabled:                 true,
			EnableRealtimeMonitor:   true,
			EnableInternetProviders: true,
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := h.AddLibraryPath(cmd.Context(), name, p); err != nil {
				return err
			}
		}
		fmt.Printf("Created library %s (%s)\n", lib.Name, lib.ID)
		return nil
	})
}

func runAddUser(cmd *cobra.Command, args []string) error {
	return withContainer(func(injector do.Injector) error {
		h, err := do.Invoke[*providers.HostHandle](injector)
		if err != nil {
			return err
		}
		user, err := h.CreateUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created user %s (%s)\n", user.Name, user.ID)
		return nil
	})
}

func runAddToGroup(cmd *cobra.Command, args []string) error {
	return withContainer(func(injector do.Injector) error {
		h, err := do.Invoke[*providers.HostHandle](injector)
		if err != nil {
			return err
		}
		if err := h.AddUserToGroup(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Added %s to %s\n", args[0], args[1])
		return nil
	})
}

func runRefreshes(cmd *cobra.Command, _ []string) error {
	return withContainer(func(injector do.Injector) error {
		h, err := do.Invoke[*providers.HostHandle](injector)
		if err != nil {
			return err
		}
		queued, err := h.PendingRefreshes(cmd.Context())
		if err != nil {
			return err
		}
		if len(queued) == 0 {
			fmt.Println(dimStyle.Render("No refreshes queued."))
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, headerStyle.Render("ID")+"\tLIBRARY\tMETADATA\tIMAGES\tPRIORITY")
		for _, q := range queued {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n",
				q.ID, q.LibraryID, q.Request.MetadataMode, q.Request.ImageMode, q.Request.Priority)
		}
		return tw.Flush()
	})
}
