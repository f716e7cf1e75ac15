package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish RESOURCE_ID",
	Short: "Build and start a resource's container and print its host port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		port, err := a.coordinator.Publish(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", port)
		return nil
	},
}

var teardownCmd = &cobra.Command{
	Use:   "teardown RESOURCE_ID",
	Short: "Remove a resource's container and its record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.coordinator.Teardown(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s torn down\n", args[0])
		return nil
	},
}

// Resource commands
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Manage content resources",
}

var resourcesAddCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Upload a content file as a new resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, rec, err := a.resources.Create(cmd.Context(), filepath.Base(args[0]), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Resource %s created (container %s, port %d)\n", res.ID, rec.UniqueName, rec.HostPort)
		return nil
	},
}

var resourcesImportCmd = &cobra.Command{
	Use:   "import REPO_URL ENTRY",
	Short: "Clone a git repository and add one of its files as a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, rec, err := a.resources.Import(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Resource %s imported (container %s, port %d)\n", res.ID, rec.UniqueName, rec.HostPort)
		return nil
	},
}

var resourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		resources, err := a.resources.List(cmd.Context())
		if err != nil {
			return err
		}
		return printResources(cmd.OutOrStdout(), output, resources)
	},
}

var resourcesDeleteCmd = &cobra.Command{
	Use:   "delete RESOURCE_ID",
	Short: "Tear down and delete a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.resources.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Resource %s deleted\n", args[0])
		return nil
	},
}

// Record commands
var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect container records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List container records",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.registry.List(cmd.Context())
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), output, records)
	},
}

func init() {
	resourcesCmd.AddCommand(resourcesAddCmd)
	resourcesCmd.AddCommand(resourcesImportCmd)
	resourcesCmd.AddCommand(resourcesListCmd)
	resourcesCmd.AddCommand(resourcesDeleteCmd)
	recordsCmd.AddCommand(recordsListCmd)

	resourcesListCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
	recordsListCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
}
