// Command staticd serves files from a directory over HTTP/1.1 GET.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/s00inx/staticd/internal/config"
	"github.com/s00inx/staticd/internal/logx"
	"github.com/s00inx/staticd/server"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	settings, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	log, err := logx.New(settings.LogLevel, settings.LogFormat, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	log.WithFields(logrus.Fields{
		"directory": settings.Directory,
		"address":   settings.Address(),
		"daemonize": settings.Daemonize,
	}).Debug("settings loaded")

	if err := os.MkdirAll(settings.Directory, 0o755); err != nil {
		log.WithError(err).WithField("directory", settings.Directory).Error("cannot create document root")
		return 1
	}

	if settings.Daemonize && !isDaemon() {
		pid, err := daemonize(args)
		if err != nil {
			log.WithError(err).WithField("pid", pid).Error("background start failed")
			return 1
		}
		log.WithField("pid", pid).Info("started in background")
		return 0
	}
	ready := openReadyPipe()

	srv, err := server.New(settings, log)
	if err != nil {
		ready.report(fmt.Errorf("setup: %w", err))
		log.WithError(err).Error("setup")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	runDone := make(chan struct{})
	go func() {
		select {
		case <-srv.Ready():
			ready.report(nil)
		case <-runDone:
		}
	}()

	err = srv.Run(ctx)
	close(runDone)
	if err != nil {
		ready.report(fmt.Errorf("server failed: %w", err))
		log.WithError(err).Error("server failed")
		return 1
	}
	return 0
}

// parseArgs loads the config file named by -c and applies the other flags on top of it
func parseArgs(args []string, out io.Writer) (*config.Settings, error) {
	fs := flag.NewFlagSet("staticd", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		cfgPath    = fs.String("c", "", "config file (yaml)")
		host       = fs.String("h", "", "listen host (default 0.0.0.0)")
		port       = fs.Int("p", 0, "listen port (default 15282)")
		dir        = fs.String("d", "", "document root (default /tmp/www/htdocs)")
		foreground = fs.Bool("k", false, "keep in foreground, do not daemonize")
		workers    = fs.Int("w", 0, "number of workers (default 3)")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	settings, err := config.Load(*cfgPath)
	if err != nil {
		return nil, err
	}

	// only flags given on the command line win over file and env
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "h":
			settings.Host = *host
		case "p":
			settings.Port = *port
		case "d":
			settings.Directory = *dir
		case "k":
			settings.Daemonize = !*foreground
		case "w":
			settings.Workers = *workers
		}
	})

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}
	return settings, nil
}
