package commands

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cartonfs/carton/pkg/runtime"
)

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "Show the library termination order",
	Long: `Print the phase table the runtime walks during terminate. Groups are
attempted in order; a group with pending resources stops the pass and
the loop starts over from the top.`,
	RunE: runPhases,
}

func runPhases(cmd *cobra.Command, args []string) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"#", "Group", "Phases"})

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	rt := runtime.New()
	for i, group := range rt.PhaseGroups() {
		names := make([]string, 0, len(group.Phases))
		for _, p := range group.Phases {
			names = append(names, p.Name)
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			group.Name,
			strings.Join(names, ", "),
		})
	}

	table.Render()
	return nil
}
