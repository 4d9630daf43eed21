package records

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

// None is used when no catalog is configured: nothing can be looked up and
// no id has a live counterpart.
type None struct{}

var (
	_ opendocs.RecordLookup   = None{}
	_ opendocs.LiveIDResolver = None{}
)

func (None) LookupRecord(_ context.Context, table string, uid int64) (opendocs.Record, error) {
	return opendocs.Record{}, errors.Wrapf(opendocs.ErrRecordNotFound, "no record catalog: %s", opendocs.Identifier(table, uid))
}

func (None) ResolveLiveID(context.Context, string, int64) (int64, bool, error) {
	return 0, false, nil
}
