package records

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

// SeedFile is the YAML layout accepted by Seed:
//
//	records:
//	  - table: pages
//	    uid: 1
//	    title: Home
type SeedFile struct {
	Records []opendocs.Record `yaml:"records"`
}

// Seed upserts every record of a YAML seed file and returns how many it wrote.
func (c *Catalog) Seed(ctx context.Context, r io.Reader) (int, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "record catalog: decode seed")
	}
	for i, rec := range f.Records {
		if err := c.Upsert(ctx, rec); err != nil {
			return i, err
		}
	}
	return len(f.Records), nil
}
