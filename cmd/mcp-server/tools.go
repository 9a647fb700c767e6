package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"lsp-mcp/internal/mcp"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	toolNameColor = color.New(color.FgCyan, color.Bold)
	toolArgsColor = color.New(color.FgHiBlack)
)

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry := mcp.NewRegistry(cfg.Tools.Namespace, mcp.WithDisabledTools(cfg.Tools.Disabled...))
	descs, err := registry.Describe(mcp.Operations())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	setColorOutput(out)
	printTools(out, descs)
	return nil
}

// setColorOutput disables colors unless w is a terminal
func setColorOutput(w io.Writer) {
	f, ok := w.(*os.File)
	color.NoColor = !ok || !isatty.IsTerminal(f.Fd())
}

// printTools writes one line per tool: name, arguments and the first line
// of its description
func printTools(w io.Writer, descs []mcp.ToolDescriptor) {
	for _, desc := range descs {
		summary, _, _ := strings.Cut(desc.Description, "\n")
		toolNameColor.Fprintf(w, "%-30s", desc.Name)
		toolArgsColor.Fprintf(w, " %-18s", argumentList(desc.Operation.Shape))
		fmt.Fprintf(w, " %s\n", summary)
	}
}

func argumentList(shape mcp.Shape) string {
	if shape == mcp.PathAndPosition {
		return "(path, line, col)"
	}
	return "(path)"
}
