package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
)

type MigrateCommand struct {
	*cmds.CommandDescription
}

type MigrateSettings struct {
	Users  []string `glazed:"user"`
	DryRun bool     `glazed:"dry-run"`
}

func NewMigrateCommand() (*MigrateCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}
	appSection, err := NewAppSection()
	if err != nil {
		return nil, err
	}

	return &MigrateCommand{
		CommandDescription: cmds.NewCommandDescription(
			"migrate",
			cmds.WithShort("Rewrite legacy recent document entries into the current format"),
			cmds.WithLong("Normalize each user's stored entries and report how many were kept, salvaged or discarded."),
			cmds.WithFlags(
				fields.New(
					"user",
					fields.TypeStringList,
					fields.WithHelp("Backend user ids"),
					fields.WithRequired(true),
				),
				fields.New(
					"dry-run",
					fields.TypeBool,
					fields.WithDefault(false),
					fields.WithHelp("Report what would change without writing"),
				),
			),
			cmds.WithSections(appSection, glazedSection, commandSettingsSection),
		),
	}, nil
}

func (c *MigrateCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *values.Values, gp middlewares.Processor) error {
	s := &MigrateSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	appSettings, err := decodeAppSettings(parsedLayers)
	if err != nil {
		return err
	}
	a, err := openApp(appSettings)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rows, err := migrateUsers(ctx, a, s.Users, s.DryRun)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

var _ cmds.GlazeCommand = &MigrateCommand{}

func migrateUsers(ctx context.Context, a *app, users []string, dryRun bool) ([]types.Row, error) {
	if len(users) == 0 {
		return nil, errors.New("at least one --user is required")
	}
	rows := make([]types.Row, 0, len(users))
	for _, u := range users {
		report, err := a.repo.MigrateUser(ctx, u, dryRun)
		if err != nil {
			return nil, errors.Wrapf(err, "migrate user %s", u)
		}
		rows = append(rows, types.NewRow(
			types.MRP("user", u),
			types.MRP("dry_run", dryRun),
			types.MRP("kept", report.Kept),
			types.MRP("salvaged", report.Salvaged),
			types.MRP("discarded", report.Discarded),
			types.MRP("changed", report.Changed),
		))
	}
	return rows, nil
}
