package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saylorsolutions/rest/config"
	"github.com/saylorsolutions/rest/dispatch"
	"github.com/saylorsolutions/rest/httpx"
	"github.com/saylorsolutions/rest/install"
	"github.com/saylorsolutions/rest/internal/cli"
	flag "github.com/spf13/pflag"
)

func main() {
	ctx := signalExitCtx(context.Background(), os.Interrupt, syscall.SIGTERM)
	if err := commands(os.Stderr).Exec(ctx, os.Args[1:]); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalExitCtx cancels the returned context on the first signal, and exits the process on the second.
func signalExitCtx(parent context.Context, signals ...os.Signal) context.Context {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, signals...)
	go func() {
		<-sigs
		cancel()
		<-sigs
		os.Exit(1)
	}()
	return ctx
}

func commands(out io.Writer) *cli.CommandSet {
	set := cli.NewCommandSet("restd", out)

	serve := set.AddCommand("serve", "Installs the service and serves HTTP requests until interrupted")
	serveConf := serve.Flags().StringP("config", "c", "", "Path to an HCL config file")
	listen := serve.Flags().StringP("listen", "l", "", "Overrides the configured listen address")
	serve.Usage("serve [FLAGS]").Does(func(ctx context.Context, flags *flag.FlagSet, out io.Writer) error {
		conf, err := config.Load(*serveConf)
		if err != nil {
			return err
		}
		if flags.Changed("listen") {
			conf.Listen = *listen
		}
		return runServe(ctx, conf, out)
	})

	inst := set.AddCommand("install", "Runs the install sequence once, locally or against a running server")
	instConf := inst.Flags().StringP("config", "c", "", "Path to an HCL config file")
	remote := inst.Flags().StringP("remote", "r", "", "Base URL of a running server to send the install request to")
	inst.Usage("install [FLAGS]").Does(func(ctx context.Context, _ *flag.FlagSet, out io.Writer) error {
		conf, err := config.Load(*instConf)
		if err != nil {
			return err
		}
		if len(*remote) > 0 {
			return runRemoteInstall(ctx, conf, *remote, out)
		}
		return runInstall(ctx, conf, out)
	})

	tok := set.AddCommand("token", "Issues a system token for the install route")
	tokConf := tok.Flags().StringP("config", "c", "", "Path to an HCL config file")
	ttl := tok.Flags().Duration("ttl", time.Hour, "How long the token is valid")
	tok.Usage("token [FLAGS]").Does(func(_ context.Context, _ *flag.FlagSet, out io.Writer) error {
		conf, err := config.Load(*tokConf)
		if err != nil {
			return err
		}
		if len(conf.JWTSecret) == 0 {
			return cli.Usagef("a JWT secret must be configured with jwt_secret or %sJWT_SECRET", config.EnvPrefix)
		}
		token, err := install.IssueSystemToken([]byte(conf.JWTSecret), *ttl)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, token)
		return nil
	})
	return set
}

// runServe starts listening right away, answering 503 until install succeeds.
// If every install attempt fails the server is shut down.
func runServe(ctx context.Context, conf *config.Config, out io.Writer) (err error) {
	a, err := newApp(conf, out)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		if _, err := a.install(ctx); err != nil {
			a.log.Error("Giving up on install", "error", err)
			cancel(err)
		}
	}()

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.log.Info("Listening", "addr", conf.Listen, "events", conf.EventsPath)
	if err := httpx.ListenAndServeCtx(ctx, srv, conf.ShutdownTimeout); err != nil {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func runInstall(ctx context.Context, conf *config.Config, out io.Writer) (err error) {
	a, err := newApp(conf, out)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	svc, err := a.install(ctx)
	if err != nil {
		return err
	}
	a.log.Info("Install complete", "state", svc.State().String())
	return nil
}

// runRemoteInstall sends the install request to a running server, accepting the same statuses the dispatcher does.
func runRemoteInstall(ctx context.Context, conf *config.Config, base string, out io.Writer) error {
	if len(conf.JWTSecret) == 0 {
		return cli.Usagef("a JWT secret must be configured with jwt_secret or %sJWT_SECRET", config.EnvPrefix)
	}
	token, err := install.IssueSystemToken([]byte(conf.JWTSecret), systemTokenTTL)
	if err != nil {
		return err
	}
	call := httpx.NewCall(http.MethodPost, base+dispatch.InstallPath).Query("jwt", token)
	if _, err := call.Expect(ctx, dispatch.InstallStatuses...); err != nil {
		return fmt.Errorf("install request failed: %w", err)
	}
	_, _ = fmt.Fprintln(out, "install request accepted")
	return nil
}
