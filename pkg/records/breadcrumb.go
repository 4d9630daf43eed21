package records

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

const (
	tableFile         = "sys_file"
	tableFileMetadata = "sys_file_metadata"
	tablePages        = "pages"

	folderIcon      = "apps-filetree-folder-default"
	storageRootIcon = "apps-filetree-root"
	// defaultStorage is the uid of the storage file identifiers are relative to.
	defaultStorage = "1"
	maxRootline    = 64
)

// Breadcrumb returns the location of rec, outermost first. Files get their
// folder path, file metadata follows its file, everything else gets the page
// rootline above it.
func (c *Catalog) Breadcrumb(ctx context.Context, rec opendocs.Record) ([]opendocs.BreadcrumbNode, error) {
	switch rec.Table {
	case tableFileMetadata:
		if rec.File <= 0 {
			return []opendocs.BreadcrumbNode{}, nil
		}
		file, ok, err := c.get(ctx, tableFile, rec.File)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Wrapf(opendocs.ErrRecordNotFound, "record catalog: file %d", rec.File)
		}
		return c.folderBreadcrumb(file.Identifier), nil
	case tableFile:
		return c.folderBreadcrumb(rec.Identifier), nil
	default:
		return c.rootline(ctx, rec)
	}
}

func (c *Catalog) folderBreadcrumb(identifier string) []opendocs.BreadcrumbNode {
	nodes := []opendocs.BreadcrumbNode{c.folderNode("/", "fileadmin", storageRootIcon)}
	dir := path.Dir(path.Clean("/" + identifier))
	if dir == "/" || dir == "." {
		return nodes
	}
	current := "/"
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		current += part + "/"
		nodes = append(nodes, c.folderNode(current, part, folderIcon))
	}
	return nodes
}

func (c *Catalog) folderNode(folder, label, icon string) opendocs.BreadcrumbNode {
	id := defaultStorage + ":" + folder
	return opendocs.BreadcrumbNode{
		Identifier: id,
		Label:      label,
		Icon:       icon,
		URL:        c.fileListRoute + "?" + url.Values{"id": []string{id}}.Encode(),
	}
}

// rootline walks pid upwards. A page missing from the catalog ends the walk.
func (c *Catalog) rootline(ctx context.Context, rec opendocs.Record) ([]opendocs.BreadcrumbNode, error) {
	var reversed []opendocs.BreadcrumbNode
	seen := map[int64]bool{}
	pid := rec.PID
	for pid > 0 && len(reversed) < maxRootline && !seen[pid] {
		seen[pid] = true
		page, ok, err := c.get(ctx, tablePages, pid)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		icon := page.Icon
		if icon == "" {
			icon = "apps-pagetree-page-default"
		}
		reversed = append(reversed, opendocs.BreadcrumbNode{
			Identifier: opendocs.Identifier(tablePages, page.UID),
			Label:      page.Title,
			Icon:       icon,
			Table:      tablePages,
			UID:        page.UID,
		})
		pid = page.PID
	}
	nodes := make([]opendocs.BreadcrumbNode, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		nodes = append(nodes, reversed[i])
	}
	return nodes, nil
}
