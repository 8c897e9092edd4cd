package install

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/saylorsolutions/rest/dispatch"
	"github.com/saylorsolutions/rest/message"
	"github.com/saylorsolutions/rest/registry"
	"github.com/saylorsolutions/rest/stream"
)

// EventSchema is committed once for each connection whose schema was applied.
const EventSchema = "rest.install.schema"

// Connector provides the connection for a named database when the schema is applied.
type Connector func(name string) (Beginner, error)

// Schema pairs named connections with the DDL statements to run against them.
// Names missing from Connections are passed to Connect, if it's set.
// Statements for a name without a connection are an error.
type Schema struct {
	Connections map[string]Beginner
	Connect     Connector
	Statements  map[string][]string
}

// RegistryConnector resolves database options from the registry each time a connection is needed, and passes them to open.
// Used as an install route connector, this sees the options as published by installation, including ephemeral overrides.
func RegistryConnector(r registry.Registry, open func(name string, opt registry.DBOption) (Beginner, error)) Connector {
	return func(name string) (Beginner, error) {
		opts, ok, err := registry.DBOptions(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("no database options to connect '%s': %w", name, registry.Unbound(registry.KeyDBOptions))
		}
		opt, ok := opts[name]
		if !ok {
			return nil, fmt.Errorf("no database options for '%s'", name)
		}
		return open(name, opt)
	}
}

func (s Schema) connection(name string) (Beginner, error) {
	if conn, ok := s.Connections[name]; ok && conn != nil {
		return conn, nil
	}
	if s.Connect == nil {
		return nil, fmt.Errorf("no connection named '%s'", name)
	}
	conn, err := s.Connect(name)
	if err != nil {
		return nil, fmt.Errorf("failed to connect '%s': %w", name, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("no connection named '%s'", name)
	}
	return conn, nil
}

type handlerConf struct {
	timeout time.Duration
	log     *slog.Logger
	stream  *stream.Stream
}

type HandlerOption func(conf *handlerConf)

// WithTimeout bounds the time spent applying the whole schema. Defaults to 30 seconds.
func WithTimeout(timeout time.Duration) HandlerOption {
	return func(conf *handlerConf) {
		if timeout > 0 {
			conf.timeout = timeout
		}
	}
}

func WithLogger(l *slog.Logger) HandlerOption {
	return func(conf *handlerConf) {
		if l != nil {
			conf.log = l
		}
	}
}

// WithStream enables committing [EventSchema] for each applied connection.
func WithStream(s *stream.Stream) HandlerOption {
	return func(conf *handlerConf) {
		conf.stream = s
	}
}

// Handler creates the install route handler.
// Requests without a valid system token in the "jwt" query parameter get a 403.
// Otherwise, each connection's statements are run in their own transaction and the response is a 204.
func Handler(secret []byte, schema Schema, opts ...HandlerOption) dispatch.Handler {
	conf := &handlerConf{
		timeout: 30 * time.Second,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(conf)
	}
	return dispatch.HandlerFunc(func(req *message.Request, resp *message.Response) error {
		token, _ := req.Query("jwt")
		if err := VerifySystemToken(secret, token); err != nil {
			conf.log.Warn("Rejected install request", "error", err)
			resp.WithStatus(http.StatusForbidden)
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), conf.timeout)
		defer cancel()
		if err := schema.apply(ctx, conf); err != nil {
			return err
		}
		resp.WithStatus(http.StatusNoContent)
		return nil
	})
}

func (s Schema) apply(ctx context.Context, conf *handlerConf) error {
	names := make([]string, 0, len(s.Statements))
	for name := range s.Statements {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		conn, err := s.connection(name)
		if err != nil {
			return err
		}
		stmts := s.Statements[name]
		err = WithTxCtx(ctx, conn, nil, func(tx *sql.Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("connection '%s': %w", name, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		conf.log.Info("Applied schema", "connection", name, "statements", len(stmts))
		if conf.stream != nil {
			if err := conf.stream.Commit(EventSchema, name, map[string]any{"statements": len(stmts)}); err != nil {
				return err
			}
		}
	}
	return nil
}
