package cmds

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the opendocs command tree. Config file and
// environment values become the flag defaults, so they have to be loaded
// before the subcommands are described.
func NewRootCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: "Track and serve recently opened backend documents",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.InitLoggerFromCobra(cmd)
		},
	}
	if err := clay.InitGlazed(AppName, rootCmd); err != nil {
		return nil, err
	}
	initEnv()

	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	builders := []func() (cmds.Command, error){
		func() (cmds.Command, error) { return NewServeCommand() },
		func() (cmds.Command, error) { return NewListCommand() },
		func() (cmds.Command, error) { return NewAddCommand() },
		func() (cmds.Command, error) { return NewRemoveCommand() },
		func() (cmds.Command, error) { return NewMigrateCommand() },
		func() (cmds.Command, error) { return NewWatchCommand() },
	}
	for _, build := range builders {
		command, err := buildCobra(build)
		if err != nil {
			return nil, err
		}
		rootCmd.AddCommand(command)
	}

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the record catalog used to enrich listings",
	}
	seedCmd, err := buildCobra(func() (cmds.Command, error) { return NewCatalogSeedCommand() })
	if err != nil {
		return nil, err
	}
	catalogCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(catalogCmd)

	return rootCmd, nil
}

func buildCobra(build func() (cmds.Command, error)) (*cobra.Command, error) {
	command, err := build()
	if err != nil {
		return nil, err
	}
	return cli.BuildCobraCommand(command)
}
