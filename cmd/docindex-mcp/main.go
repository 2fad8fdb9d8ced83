package main

import (
	"context"
	"os"

	"github.com/sha1n/mcp-docindex-server/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "docindex-mcp"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "Documentation index MCP Server",
		Long:    "Serves name lookups and full-text search over a generated documentation search index (Doxygen searchdata shards) via MCP",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithFlags(cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterFlags(rootCmd.Flags())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

func newQueryCommand() *cobra.Command {
	var opts app.QueryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Look up a name in the search index and print the matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Text = args[0]
			return app.RunQuery(cmd.Context(), cmd.Flags(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "Match mode: prefix or substring (defaults to index-mode)")
	cmd.Flags().StringSliceVarP(&opts.Categories, "category", "c", nil, "Restrict results to these categories")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Maximum number of results (defaults to index-max-results)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print results as JSON")
	app.RegisterIndexFlags(cmd.Flags())

	return cmd
}

func runWithFlags(flags *pflag.FlagSet, version string) error {
	return app.RunWithDeps(context.Background(), app.DefaultRunParams(), flags, version)
}
