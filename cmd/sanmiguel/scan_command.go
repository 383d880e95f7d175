package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"sanmiguel/internal/convert"
	"sanmiguel/internal/scan"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List manifests and the textures they reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, ctx, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output inventory as JSON")
	return cmd
}

// runInspect is the normal, non-converting mode: report what a conversion
// run would see.
func runInspect(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	runner, err := convert.New(cfg, logger)
	if err != nil {
		return err
	}
	inv, err := runner.Inspect(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd, newInventoryView(inv))
	}
	out := cmd.OutOrStdout()
	renderInventory(out, inv, shouldColorize(out))
	return nil
}

func renderInventory(out io.Writer, inv *scan.Inventory, colorize bool) {
	for _, line := range renderSectionHeader("Asset inventory", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Asset root", statusInfo, inv.Root, colorize))
	if inv.Empty() {
		fmt.Fprintln(out, renderStatusLine("Manifests", statusWarn, "none found", colorize))
		return
	}

	manifestErrors := 0
	for _, m := range inv.Manifests {
		if m.Err != nil {
			manifestErrors++
		}
	}
	manifestKind := statusOK
	manifestMsg := strconv.Itoa(len(inv.Manifests))
	if manifestErrors > 0 {
		manifestKind = statusWarn
		manifestMsg = fmt.Sprintf("%d (%d unreadable)", len(inv.Manifests), manifestErrors)
	}
	fmt.Fprintln(out, renderStatusLine("Manifests", manifestKind, manifestMsg, colorize))

	ready := inv.ReadySources()
	var pending int64
	for _, src := range ready {
		pending += src.Size
	}
	fmt.Fprintln(out, renderStatusLine("Image textures", statusInfo,
		fmt.Sprintf("%d distinct (%d references, %s)", len(inv.Sources), inv.References(), formatBytes(pending)), colorize))
	fmt.Fprintln(out, renderStatusLine("Already KTX2", statusInfo,
		strconv.Itoa(inv.CountSkipped(scan.SkipAlreadyConverted)), colorize))
	if unavailable := len(inv.Sources) - len(ready); unavailable > 0 {
		fmt.Fprintln(out, renderStatusLine("Unavailable", statusWarn, strconv.Itoa(unavailable), colorize))
	}

	if len(inv.Sources) == 0 {
		return
	}
	rows := make([][]string, 0, len(inv.Sources))
	for _, src := range inv.Sources {
		rows = append(rows, []string{
			displayPath(inv.Root, src.Path),
			stateLabel(string(src.Status)),
			strconv.Itoa(len(src.Consumers)),
			formatBytes(src.Size),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"Texture", "Status", "Refs", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))
}
