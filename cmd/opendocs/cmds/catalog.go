package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
)

type CatalogSeedCommand struct {
	*cmds.CommandDescription
}

type CatalogSeedSettings struct {
	File string `glazed:"file"`
}

func NewCatalogSeedCommand() (*CatalogSeedCommand, error) {
	appSection, err := NewAppSection()
	if err != nil {
		return nil, err
	}
	return &CatalogSeedCommand{
		CommandDescription: cmds.NewCommandDescription(
			"seed",
			cmds.WithShort("Load records from a YAML file into the catalog"),
			cmds.WithFlags(
				fields.New(
					"file",
					fields.TypeString,
					fields.WithShortFlag("f"),
					fields.WithHelp("YAML seed file"),
					fields.WithRequired(true),
				),
			),
			cmds.WithSections(appSection),
		),
	}, nil
}

func (c *CatalogSeedCommand) RunIntoWriter(ctx context.Context, parsedLayers *values.Values, w io.Writer) error {
	s := &CatalogSeedSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	appSettings, err := decodeAppSettings(parsedLayers)
	if err != nil {
		return err
	}
	n, err := seedCatalog(ctx, appSettings, s.File)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "seeded %d records\n", n)
	return err
}

var _ cmds.WriterCommand = &CatalogSeedCommand{}

func seedCatalog(ctx context.Context, s AppSettings, file string) (int, error) {
	if s.CatalogDSN == "" {
		return 0, errors.New("--catalog-dsn is required")
	}
	f, err := os.Open(file)
	if err != nil {
		return 0, errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	a, err := openApp(s)
	if err != nil {
		return 0, err
	}
	defer func() { _ = a.Close() }()
	return a.catalog.Seed(ctx, f)
}
