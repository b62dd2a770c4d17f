package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"cdd/internal/paths"
	"cdd/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace [dir]",
	Short: "List workspace packages and their entry files",
	Long: `List the packages of an npm, yarn or pnpm workspace together with the
file each bare package import resolves to.

Examples:
  cdd workspace
  cdd workspace ./monorepo`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWorkspace,
}

func init() {
	rootCmd.AddCommand(workspaceCmd)
}

func runWorkspace(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	root, err := checkRoot(dir)
	if err != nil {
		return err
	}

	logger := rootOpts.newLogger(cmd.ErrOrStderr(), rootOpts.level(""))
	ws, err := workspace.Detect(root, logger)
	if err != nil {
		return err
	}
	if ws == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "No workspace found in %s\n", root)
		return nil
	}
	return writeWorkspaceTable(cmd.OutOrStdout(), ws)
}

// writeWorkspaceTable prints one row per package, sorted by name.
func writeWorkspaceTable(w io.Writer, ws *workspace.Workspace) error {
	names := ws.Names()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Package", "Path", "Entry"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})

	for _, name := range names {
		info := ws.Packages[name]
		entry := "-"
		if p, ok := ws.ResolveEntry(info); ok {
			entry = paths.RelativeString(p, ws.Root)
		}
		table.Append([]string{name, paths.RelativeString(info.Path, ws.Root), entry})
	}
	table.SetFooter([]string{fmt.Sprintf("%d package(s)", len(names)), "", ""})
	table.Render()

	_, err := io.Copy(w, &buf)
	return err
}
