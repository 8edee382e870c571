package cli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cfncheck/cfncheck/internal/config"
	"github.com/cfncheck/cfncheck/internal/logger"
	"github.com/cfncheck/cfncheck/internal/schema"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	specs      []string
	logLevel   string
	logFormat  string
}

// state is what PersistentPreRunE prepares for the subcommands.
type state struct {
	flags  globalFlags
	config *config.Config
}

func NewRootCommand() *cobra.Command {
	st := &state{}

	root := &cobra.Command{
		Use:           "cfncheck",
		Short:         "Static checks for CloudFormation templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.prepare(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&st.flags.configPath, "config", "c", "", "config file (default: nearest "+config.FileName+")")
	flags.StringArrayVarP(&st.flags.specs, "spec", "s", nil, "extra specification document, repeatable")
	flags.StringVar(&st.flags.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&st.flags.logFormat, "log-format", "logfmt", "logfmt or json")

	root.AddCommand(
		newLintCommand(st),
		newGraphCommand(),
		newLSPCommand(st),
		newTypesCommand(st),
		newRulesCommand(),
		newInitCommand(),
		newVersionCommand(),
	)
	return root
}

func (st *state) prepare(cmd *cobra.Command) error {
	logger.SetOutput(cmd.ErrOrStderr())
	if err := logger.SetFormat(st.flags.logFormat); err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "resolving working directory")
	}
	cfg, err := config.Resolve(st.flags.configPath, wd)
	if err != nil {
		return err
	}
	st.config = cfg

	level := cfg.LogLevel
	if st.flags.logLevel != "" {
		level = st.flags.logLevel
	}
	if err := logger.SetLevel(level); err != nil {
		return err
	}
	if cfg.Path != "" {
		logger.Debugf("using config %s", cfg.Path)
	}
	return nil
}

// table loads the built-in specification merged with the config's documents
// and then the --spec flags.
func (st *state) table() (*schema.Table, error) {
	paths := append(append([]string(nil), st.config.Spec...), st.flags.specs...)
	table, err := schema.LoadFullTable(paths...)
	if err != nil {
		return nil, err
	}
	logger.Debugf("specification %s: %d resource types", table.Version, len(table.ResourceTypeNames()))
	return table, nil
}
