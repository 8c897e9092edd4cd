package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/saylorsolutions/rest/dispatch"
	"github.com/saylorsolutions/rest/registry"
)

// fileRoot is every setting that may appear in a config file.
// Attributes that aren't set leave the current value alone.
type fileRoot struct {
	Listen          *string         `hcl:"listen,optional"`
	LogLevel        *string         `hcl:"log_level,optional"`
	LogFormat       *string         `hcl:"log_format,optional"`
	LogFile         *string         `hcl:"log_file,optional"`
	JWTSecret       *string         `hcl:"jwt_secret,optional"`
	InstallRoute    *bool           `hcl:"install_route,optional"`
	InstallAttempts *int            `hcl:"install_attempts,optional"`
	ShutdownTimeout *string         `hcl:"shutdown_timeout,optional"`
	CacheURL        *string         `hcl:"cache_url,optional"`
	EventsPath      *string         `hcl:"events_path,optional"`
	CORSOrigins     []string        `hcl:"cors_origins,optional"`
	Ephemeral       *ephemeralBlock `hcl:"ephemeral,block"`
	DBs             []*dbBlock      `hcl:"db,block"`
}

type ephemeralBlock struct {
	DBURL    *string `hcl:"db_url,optional"`
	CacheURL *string `hcl:"cache_url,optional"`
}

type dbBlock struct {
	Name    string            `hcl:"name,label"`
	URL     string            `hcl:"url"`
	Driver  *string           `hcl:"driver,optional"`
	Options map[string]string `hcl:"options,optional"`
	Schema  []string          `hcl:"schema,optional"`
}

// ParseFile reads an HCL config file into conf.
func ParseFile(conf *Config, path string) error {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidConfig, path, diags)
	}
	return decodeBody(conf, f.Body, path)
}

// ParseBytes is like [ParseFile], but reads HCL source from memory. The filename is only used in diagnostics.
func ParseBytes(conf *Config, src []byte, filename string) error {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidConfig, filename, diags)
	}
	return decodeBody(conf, f.Body, filename)
}

func decodeBody(conf *Config, body hcl.Body, filename string) error {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("%w: failed to decode %s: %w", ErrInvalidConfig, filename, diags)
	}

	setIf(&conf.Listen, root.Listen)
	setIf(&conf.LogFormat, root.LogFormat)
	setIf(&conf.LogFile, root.LogFile)
	setIf(&conf.JWTSecret, root.JWTSecret)
	setIf(&conf.InstallRoute, root.InstallRoute)
	setIf(&conf.InstallAttempts, root.InstallAttempts)
	setIf(&conf.EventsPath, root.EventsPath)
	if root.CORSOrigins != nil {
		conf.CORSOrigins = root.CORSOrigins
	}
	if root.LogLevel != nil {
		if err := conf.LogLevel.UnmarshalText([]byte(*root.LogLevel)); err != nil {
			return fmt.Errorf("%w: %s: log_level: %v", ErrInvalidConfig, filename, err)
		}
	}
	if root.ShutdownTimeout != nil {
		timeout, err := time.ParseDuration(*root.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("%w: %s: shutdown_timeout: %v", ErrInvalidConfig, filename, err)
		}
		conf.ShutdownTimeout = timeout
	}
	if root.CacheURL != nil {
		url := *root.CacheURL
		conf.CacheURL = &url
	}
	if root.Ephemeral != nil {
		eph := &dispatch.Ephemeral{}
		setIf(&eph.DBURL, root.Ephemeral.DBURL)
		setIf(&eph.CacheURL, root.Ephemeral.CacheURL)
		conf.Ephemeral = eph
	}
	for _, db := range root.DBs {
		if conf.DB == nil {
			conf.DB = map[string]Database{}
		}
		if _, ok := conf.DB[db.Name]; ok {
			return fmt.Errorf("%w: %s: db '%s' is declared more than once", ErrInvalidConfig, filename, db.Name)
		}
		d := Database{
			DBOption: registry.DBOption{URL: db.URL, Options: db.Options},
			Schema:   db.Schema,
		}
		setIf(&d.Driver, db.Driver)
		conf.DB[db.Name] = d
	}
	return nil
}

func setIf[T any](dst *T, val *T) {
	if val != nil {
		*dst = *val
	}
}
