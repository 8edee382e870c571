package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cfncheck/cfncheck/internal/config"
	"github.com/cfncheck/cfncheck/internal/logger"
	"github.com/cfncheck/cfncheck/internal/lsp"
	"github.com/cfncheck/cfncheck/internal/validator"
)

// Set with -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func newLSPCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Run the language server on standard input and output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := st.table()
			if err != nil {
				return err
			}
			logger.Debugf("language server starting")
			return lsp.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), table).Run()
		},
	}
}

func newTypesCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the resource types known to the specification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := st.table()
			if err != nil {
				return err
			}
			for _, name := range table.ResourceTypeNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newRulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the rule ids accepted by disable and ignore",
		Args:  cobra.NoArgs,
		// Listing needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			for _, r := range validator.Rules {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
		},
	}
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "init [dir]",
		Short:             "Write a starter " + config.FileName,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path := filepath.Join(dir, config.FileName)
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				if os.IsExist(err) {
					return errors.Errorf("%s already exists", path)
				}
				return errors.Wrapf(err, "creating %s", path)
			}
			if _, err := f.WriteString(config.Starter); err != nil {
				f.Close()
				return errors.Wrapf(err, "writing %s", path)
			}
			if err := f.Close(); err != nil {
				return errors.Wrapf(err, "writing %s", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print version information",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cfncheck %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
