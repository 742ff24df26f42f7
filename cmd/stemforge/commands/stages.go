package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/pkg/contract"
)

// NewStagesCommand creates the contract listing command.
func NewStagesCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the declared stage contracts",
		Long: `Print every stage contract in execution order: id, kind, dependencies,
and declared metric targets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			contracts, err := loadContracts(cfg)
			if err != nil {
				return err
			}

			printContracts(cobraCmd.OutOrStdout(), contracts)

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")

	return cmd
}

// kindColors maps stage kinds to terminal colors.
var kindColors = map[contract.Kind]*color.Color{
	contract.KindAnalysis:   color.New(color.FgCyan),
	contract.KindStemsDSP:   color.New(color.FgYellow),
	contract.KindMixdownDSP: color.New(color.FgMagenta),
	contract.KindStructural: color.New(color.FgGreen),
}

func printContracts(out io.Writer, contracts *contract.Registry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"#", "Stage", "Kind", "Depends On", "Targets"})

	for i, c := range contracts.AllInOrder() {
		kind := string(c.Kind)
		if col, ok := kindColors[c.Kind]; ok {
			kind = col.Sprint(kind)
		}

		tw.AppendRow(table.Row{
			i + 1,
			c.ID,
			kind,
			strings.Join(c.DependsOn, ", "),
			formatTargets(c.Metrics),
		})
	}

	tw.SetStyle(table.StyleLight)
	tw.Render()
}

func formatTargets(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return ""
	}

	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, metrics[k]))
	}

	return strings.Join(parts, " ")
}
