package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/hitushen/langdonboard/internal/models"
)

var flagFormat string

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "print the nine overview counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, closeFn, err := openSource()
		if err != nil {
			return err
		}
		defer closeFn()

		o, err := src.Overview(cmd.Context())
		if err != nil {
			return err
		}
		return writeOverview(cmd.OutOrStdout(), o, flagFormat)
	},
}

func init() {
	overviewCmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text or markdown")
}

func writeOverview(w io.Writer, o models.OverviewStatistics, format string) error {
	switch format {
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, c := range o.Counters() {
			fmt.Fprintf(tw, "%s\t%d\n", c.Label, c.Value)
		}
		return tw.Flush()
	case "markdown", "md":
		md := markdown.NewMarkdown(w)
		md.H1("Langdon Overview")
		md.PlainText("")
		rows := make([][]string, 0, 9)
		total := 0
		for _, c := range o.Counters() {
			rows = append(rows, []string{c.Label, strconv.Itoa(c.Value)})
			total += c.Value
		}
		rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(total) + "**"})
		md.Table(markdown.TableSet{
			Header: []string{"Asset", "Count"},
			Rows:   rows,
		})
		return md.Build()
	}
	return fmt.Errorf("unknown format %q", format)
}
