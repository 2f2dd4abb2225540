package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/RenatoCabral2022/facestream/internal/params"
)

var paramsYAML bool

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "List request parameters and their defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if paramsYAML {
			enc := yaml.NewEncoder(out)
			defer enc.Close()
			return enc.Encode(params.Default())
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "GROUP\tNAME\tDEFAULT")
		for _, p := range params.Names() {
			fmt.Fprintf(tw, "%s\t%s\t%g\n", p.Group, p.Name, p.Default)
		}
		return tw.Flush()
	},
}

func init() {
	paramsCmd.Flags().BoolVar(&paramsYAML, "yaml", false, "print the default parameter file")
}
