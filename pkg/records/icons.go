package records

import (
	"context"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

// tableIcons are the icons used for records that carry none of their own.
var tableIcons = map[string]string{
	tablePages:        "apps-pagetree-page-default",
	"tt_content":      "mimetypes-x-content-text",
	tableFile:         "mimetypes-other-other",
	tableFileMetadata: "mimetypes-other-other",
	"be_users":        "status-user-backend",
	"sys_category":    "mimetypes-x-sys_category",
}

var _ opendocs.IconResolver = &Catalog{}

// ResolveIcon prefers the record's own icon, then the table's icon. Hidden
// and deleted records get an overlay unless one is stored.
func (c *Catalog) ResolveIcon(_ context.Context, rec opendocs.Record) (string, string, error) {
	icon := rec.Icon
	if icon == "" {
		icon = tableIcons[rec.Table]
	}
	if icon == "" {
		icon = opendocs.DefaultIconIdentifier
	}
	overlay := rec.Overlay
	if overlay == "" && rec.Deleted {
		overlay = "overlay-deleted"
	}
	return icon, overlay, nil
}
