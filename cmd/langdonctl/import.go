package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitushen/langdonboard/internal/importer"
)

var (
	flagCSV  string
	flagYAML string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "import a scope CSV (asset_type,name) or a YAML seed file into the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (flagCSV == "") == (flagYAML == "") {
			return errors.New("exactly one of --csv or --yaml is required")
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		path := flagCSV
		if path == "" {
			path = flagYAML
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		im := importer.New(st)
		var report importer.Report
		if flagCSV != "" {
			report, err = im.CSV(cmd.Context(), f)
		} else {
			report, err = im.YAML(cmd.Context(), f)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	importCmd.Flags().StringVar(&flagCSV, "csv", "", "scope CSV file")
	importCmd.Flags().StringVar(&flagYAML, "yaml", "", "YAML seed file")
}
