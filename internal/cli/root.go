package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// BuildInfo is the version metadata stamped into the binary at build time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type globalFlags struct {
	configPath string
	driver     string
	dbPath     string
}

// NewRootCommand builds the expense command tree. Results are written to
// out as JSON; logs go to errOut.
func NewRootCommand(out, errOut io.Writer, build BuildInfo) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "expense",
		Short:         "Local expense record store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a TOML config file")
	cmd.PersistentFlags().StringVar(&flags.driver, "driver", "", "Storage driver: sqlite or bbolt")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "Path to the database file")

	rt := &runtime{flags: flags, out: out, errOut: errOut}

	cmd.AddCommand(newVersionCommand(out, build))
	cmd.AddCommand(newMigrateCommand(rt))
	cmd.AddCommand(newListCommand(rt))
	cmd.AddCommand(newGetCommand(rt))
	cmd.AddCommand(newAddCommand(rt))
	cmd.AddCommand(newUpdateCommand(rt))
	cmd.AddCommand(newDeleteCommand(rt))
	cmd.AddCommand(newReplaceCommand(rt))
	return cmd
}

func newVersionCommand(out io.Writer, build BuildInfo) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return writeJSON(out, build)
			}

			_, err := fmt.Fprintf(out, "version=%s commit=%s build_time=%s\n", build.Version, build.Commit, build.BuildTime)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version as JSON")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
