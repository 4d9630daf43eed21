package cmds

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

func userField() *fields.Definition {
	return fields.New(
		"user",
		fields.TypeString,
		fields.WithHelp("Backend user id"),
		fields.WithRequired(true),
	)
}

type ListCommand struct {
	*cmds.CommandDescription
}

type ListSettings struct {
	User   string `glazed:"user"`
	Enrich bool   `glazed:"enrich"`
}

func NewListCommand() (*ListCommand, error) {
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

	return &ListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List a user's recent documents, newest first"),
			cmds.WithFlags(
				userField(),
				fields.New(
					"enrich",
					fields.TypeBool,
					fields.WithDefault(false),
					fields.WithHelp("Resolve titles, icons, edit links and breadcrumbs from the catalog"),
				),
			),
			cmds.WithSections(appSection, glazedSection, commandSettingsSection),
		),
	}, nil
}

func (c *ListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *values.Values, gp middlewares.Processor) error {
	s := &ListSettings{}
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

	rows, err := listRows(ctx, a, s.User, s.Enrich)
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

var _ cmds.GlazeCommand = &ListCommand{}

func listRows(ctx context.Context, a *app, user string, enrich bool) ([]types.Row, error) {
	if user == "" {
		return nil, errors.New("--user is required")
	}
	docs, err := a.repo.List(ctx, user)
	if err != nil {
		return nil, err
	}
	if !enrich {
		rows := make([]types.Row, 0, len(docs))
		for _, d := range docs {
			rows = append(rows, types.NewRow(
				types.MRP("identifier", d.Identifier()),
				types.MRP("table", d.Table),
				types.MRP("uid", d.UID),
				types.MRP("updated_at", d.UpdatedAt.Format(opendocs.TimestampLayout)),
			))
		}
		return rows, nil
	}

	enricher, err := a.enricher()
	if err != nil {
		return nil, err
	}
	visible := opendocs.Visible(enricher.Enrich(ctx, docs))
	rows := make([]types.Row, 0, len(visible))
	for _, d := range visible {
		rows = append(rows, enrichedRow(d))
	}
	return rows, nil
}

func enrichedRow(d opendocs.EnrichedDocument) types.Row {
	breadcrumb := make([]map[string]interface{}, 0, len(d.Breadcrumb))
	for _, n := range d.Breadcrumb {
		breadcrumb = append(breadcrumb, map[string]interface{}{
			"identifier": n.Identifier,
			"label":      n.Label,
			"icon":       n.Icon,
			"url":        n.URL,
		})
	}
	return types.NewRow(
		types.MRP("identifier", d.Identifier),
		types.MRP("title", d.Title),
		types.MRP("uri", d.URI),
		types.MRP("icon", d.IconIdentifier),
		types.MRP("icon_overlay", d.IconOverlayIdentifier),
		types.MRP("breadcrumb", breadcrumb),
		types.MRP("updated_at", d.UpdatedAt),
	)
}

type AddCommand struct {
	*cmds.CommandDescription
}

type AddSettings struct {
	User  string `glazed:"user"`
	Table string `glazed:"table"`
	UID   string `glazed:"uid"`
}

func NewAddCommand() (*AddCommand, error) {
	appSection, err := NewAppSection()
	if err != nil {
		return nil, err
	}
	return &AddCommand{
		CommandDescription: cmds.NewCommandDescription(
			"add",
			cmds.WithShort("Record that a user opened a document"),
			cmds.WithFlags(userField()),
			cmds.WithArguments(
				fields.New("table", fields.TypeString, fields.WithHelp("Record table"), fields.WithRequired(true)),
				fields.New("uid", fields.TypeString, fields.WithHelp("Record uid"), fields.WithRequired(true)),
			),
			cmds.WithSections(appSection),
		),
	}, nil
}

func (c *AddCommand) RunIntoWriter(ctx context.Context, parsedLayers *values.Values, w io.Writer) error {
	s := &AddSettings{}
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

	identifier, err := addDocument(ctx, a, s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, identifier)
	return err
}

var _ cmds.WriterCommand = &AddCommand{}

func addDocument(ctx context.Context, a *app, s *AddSettings) (string, error) {
	if s.User == "" {
		return "", errors.New("--user is required")
	}
	uid, err := strconv.ParseInt(s.UID, 10, 64)
	if err != nil || uid <= 0 {
		return "", errors.Errorf("invalid uid %q", s.UID)
	}
	if err := a.repo.Add(ctx, s.Table, uid, s.User); err != nil {
		return "", err
	}
	return opendocs.Identifier(s.Table, uid), nil
}

type RemoveCommand struct {
	*cmds.CommandDescription
}

type RemoveSettings struct {
	User       string `glazed:"user"`
	Identifier string `glazed:"identifier"`
}

func NewRemoveCommand() (*RemoveCommand, error) {
	appSection, err := NewAppSection()
	if err != nil {
		return nil, err
	}
	return &RemoveCommand{
		CommandDescription: cmds.NewCommandDescription(
			"remove",
			cmds.WithShort("Forget a document from a user's recent list"),
			cmds.WithFlags(userField()),
			cmds.WithArguments(
				fields.New("identifier", fields.TypeString, fields.WithHelp("Document identifier table:uid"), fields.WithRequired(true)),
			),
			cmds.WithSections(appSection),
		),
	}, nil
}

func (c *RemoveCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	s := &RemoveSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	if s.User == "" {
		return errors.New("--user is required")
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
	return a.repo.Remove(ctx, s.Identifier, s.User)
}

var _ cmds.BareCommand = &RemoveCommand{}
