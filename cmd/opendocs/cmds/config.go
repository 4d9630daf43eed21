package cmds

import (
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
	webhttp "github.com/go-go-golems/opendocs/pkg/opendocs/http"
	"github.com/go-go-golems/opendocs/pkg/records"
)

const (
	AppName = "opendocs"
	AppSlug = "opendocs"
)

// AppSettings selects the stores every command works against.
type AppSettings struct {
	SessionDSN    string `glazed:"session-dsn"`
	CatalogDSN    string `glazed:"catalog-dsn"`
	EditRoute     string `glazed:"edit-route"`
	FileListRoute string `glazed:"file-list-route"`
	UserHeader    string `glazed:"user-header"`
}

// initEnv makes OPENDOCS_SESSION_DSN and friends visible to configString
// on top of the config file clay loaded.
func initEnv() {
	viper.SetEnvPrefix(strings.ToUpper(AppName))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// configString is the config file or environment value for key, used as the
// default of the matching flag.
func configString(key, fallback string) string {
	if v := strings.TrimSpace(viper.GetString(key)); v != "" {
		return v
	}
	return fallback
}

func NewAppSection() (schema.Section, error) {
	return schema.NewSection(
		AppSlug,
		"Recent documents storage",
		schema.WithFields(
			fields.New(
				"session-dsn",
				fields.TypeString,
				fields.WithDefault(configString("session-dsn", "memory://")),
				fields.WithHelp("Session store DSN (memory://, sqlite://, bolt://, postgres://, redis://)"),
			),
			fields.New(
				"catalog-dsn",
				fields.TypeString,
				fields.WithDefault(configString("catalog-dsn", "")),
				fields.WithHelp("Record catalog DSN (sqlite:// or postgres://); empty disables record lookups"),
			),
			fields.New(
				"edit-route",
				fields.TypeString,
				fields.WithDefault(configString("edit-route", string(opendocs.DefaultEditRoute))),
				fields.WithHelp("Route record edit links point at"),
			),
			fields.New(
				"file-list-route",
				fields.TypeString,
				fields.WithDefault(configString("file-list-route", records.DefaultFileListRoute)),
				fields.WithHelp("Route folder breadcrumb links point at"),
			),
			fields.New(
				"user-header",
				fields.TypeString,
				fields.WithDefault(configString("user-header", webhttp.DefaultUserHeader)),
				fields.WithHelp("Header carrying the authenticated backend user"),
			),
		),
	)
}

func decodeAppSettings(parsed *values.Values) (AppSettings, error) {
	s := AppSettings{}
	if err := parsed.DecodeSectionInto(AppSlug, &s); err != nil {
		return s, errors.Wrap(err, "init opendocs settings")
	}
	return s, nil
}
