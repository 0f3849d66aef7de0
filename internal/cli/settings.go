package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mvp-joe/pew/internal/config"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <name|all>",
	Short: "View pew settings",
	Long: `Get prints a global pew setting from ~/.pyeverywhere/config.json.
Use "all" to list every setting, including known settings that are unset.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := config.LoadGlobalConfig()
		if err != nil {
			return err
		}
		return executeGet(os.Stdout, g, args[0])
	},
}

var setCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Change a pew setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := config.LoadGlobalConfig()
		if err != nil {
			return err
		}
		return executeSet(g, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
}

func executeGet(w io.Writer, g *config.GlobalConfig, name string) error {
	if name != "all" {
		value, ok := g.Get(name)
		if !ok {
			return fmt.Errorf("setting %q is not set", name)
		}
		fmt.Fprintf(w, "    %s: %s\n", name, value)
		return nil
	}

	names := g.Keys()
	seen := map[string]bool{}
	for _, k := range names {
		seen[k] = true
	}
	for k := range config.KnownSettings {
		if !seen[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenColumns: tw.On},
			},
		})),
	)
	table.Header([]string{"Setting", "Value", "Description"})
	rows := make([][]any, 0, len(names))
	for _, name := range names {
		value, ok := g.Get(name)
		if !ok {
			value = "(unset)"
		}
		rows = append(rows, []any{name, value, config.KnownSettings[name]})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func executeSet(g *config.GlobalConfig, name, value string) error {
	g.Set(name, value)
	if err := g.Save(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Printf("✓ %s = %s\n", name, value)
	return nil
}
