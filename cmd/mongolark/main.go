// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// mongolark runs Starlark scripts against document databases.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"go.uber.org/automaxprocs/maxprocs"
	"gocloud.dev/blob"

	_ "mongolark.io/cmd/internal/bindings"
	"mongolark.io/docvalue"
	"mongolark.io/starlib"
	"mongolark.io/worker"
)

// ConnFlags select the connection of run and shell.
type ConnFlags struct {
	URI    string `default:"mem://"  help:"Connection URI."`
	URIVar string `name:"uri-var"    help:"Runtime variable URL holding the connection URI, overrides --uri."`
	Saved  int64  `default:"0"       help:"Saved connection id, overrides --uri."`
	DB     string `default:"test"    help:"Database bound to db."`
}

var cli struct {
	Verbose  int           `short:"v" type:"counter"    help:"Increase log verbosity."`
	Remote   string        `default:""                  help:"Remote server address, commands run in process when empty."`
	Insecure bool          `default:"false"             help:"Dial the remote server without TLS."`
	Store    string        `default:"${default_store}"  help:"Saved connection store, a SQLite file."`
	Dir      string        `default:"${default_dir}"    help:"Module bucket URL for load() and fmt."`
	Timeout  time.Duration `default:"0s"                help:"Script timeout, zero disables."`
	MaxSteps uint64        `default:"0"                 help:"Script execution step budget, zero disables."`

	Serve struct {
		Addr      string `default:"localhost:6060" help:"gRPC listen address."`
		DebugAddr string `default:"localhost:8088" help:"Listen address for HTTP handlers for metrics."`
	} `cmd:"" help:"Serve the commands over gRPC."`

	Run struct {
		ConnFlags `embed:""`

		Exec string `short:"c" help:"Execute program."`
		File string `arg:"" optional:"" help:"Script file, - reads stdin."`
	} `cmd:"" help:"Run a script and print its result as Extended JSON."`

	Shell struct {
		ConnFlags `embed:""`

		History bool `default:"true" negatable:"" help:"Keep shell history."`
	} `cmd:"" help:"Start an interactive shell."`

	Fmt struct {
		Pattern string `arg:"" optional:"" default:"*.star" help:"Key pattern of the files to format."`
	} `cmd:"" help:"Format Starlark files of the module bucket."`

	Connections struct {
		List struct{} `cmd:"" help:"List saved connections."`
		Add  struct {
			Name string `arg:"" help:"Connection name."`
			URI  string `arg:"" help:"Connection URI."`
		} `cmd:"" help:"Save a connection after checking it connects."`
	} `cmd:"" help:"Manage saved connections."`
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "mongolark")
}

func workDir() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return "file://" + filepath.ToSlash(wd) + "?metadata=skip"
}

func hostOptions(m *worker.Metrics) []worker.HostOption {
	return []worker.HostOption{
		worker.WithTimeout(cli.Timeout),
		worker.WithMaxSteps(cli.MaxSteps),
		worker.WithLoader(cli.Dir),
		worker.WithMetrics(m),
	}
}

func format(ctx context.Context, w io.Writer, bktURL, pattern string) error {
	bkt, err := blob.OpenBucket(ctx, bktURL)
	if err != nil {
		return err
	}
	defer bkt.Close()

	changed, err := worker.FormatBucket(ctx, bkt, pattern)
	for _, key := range changed {
		fmt.Fprintln(w, key)
	}
	return err
}

func readScript(exec, file string) (string, error) {
	var (
		b   []byte
		err error
	)
	switch {
	case exec != "":
		return exec, nil
	case file == "" || file == "-":
		b, err = io.ReadAll(os.Stdin)
	default:
		b, err = os.ReadFile(file)
	}
	return string(b), err
}

func run(ctx context.Context, w io.Writer, cmds commands, flags ConnFlags, src string) (err error) {
	c, err := connect(ctx, cmds, flags)
	if err != nil {
		return err
	}
	defer func() {
		if derr := cmds.Disconnect(ctx, c.ID); err == nil {
			err = derr
		}
	}()

	res, err := cmds.RunScript(ctx, c.ID, flags.DB, src)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, res.Output); err != nil {
		return err
	}
	b, err := docvalue.MarshalExtJSON(res.Value, false)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func listConnections(ctx context.Context, w io.Writer, cmds commands) error {
	cs, err := cmds.ListSavedConnections(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tURI\tCREATED")
	for _, c := range cs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.URI, c.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func addConnection(ctx context.Context, w io.Writer, cmds commands, name, uri string) error {
	c, err := cmds.Connect(ctx, uri, name)
	if err != nil {
		return err
	}
	if err := cmds.Disconnect(ctx, c.ID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "saved %s, databases: %s\n", name, strings.Join(c.DBs, ", "))
	return err
}

func main() {
	kongCtx := kong.Parse(&cli,
		kong.Vars{
			"default_store": filepath.Join(cacheDir(), "connections.db"),
			"default_dir":   workDir(),
		},
		kong.DefaultEnvars("MONGOLARK"),
		kong.UsageOnError(),
	)

	stdr.SetVerbosity(cli.Verbose)
	logger := stdr.NewWithOptions(log.New(os.Stderr, "", log.LstdFlags), stdr.Options{LogCaller: stdr.Error})
	logger = logger.WithName("mongolark")

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.V(1).Info(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Error(err, "setting GOMAXPROCS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logr.NewContext(ctx, logger)

	err := dispatch(ctx, kongCtx.Command())
	stop()
	if err != nil {
		starlib.FprintErr(os.Stderr, err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, command string) error {
	args := strings.Fields(command)
	if len(args) == 0 {
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "fmt":
		return format(ctx, os.Stdout, cli.Dir, cli.Fmt.Pattern)
	}

	cmds, closeCmds, err := openCommands(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCmds(); err != nil {
			logr.FromContextOrDiscard(ctx).Error(err, "closing")
		}
	}()

	switch args[0] {
	case "run":
		src, err := readScript(cli.Run.Exec, cli.Run.File)
		if err != nil {
			return err
		}
		return run(ctx, os.Stdout, cmds, cli.Run.ConnFlags, src)

	case "shell":
		var historyFile string
		if cli.Shell.History {
			historyFile = filepath.Join(cacheDir(), "history.txt")
		}
		return shell(ctx, cmds, cli.Shell.ConnFlags, historyFile)

	case "connections":
		if len(args) > 1 && args[1] == "add" {
			return addConnection(ctx, os.Stdout, cmds, cli.Connections.Add.Name, cli.Connections.Add.URI)
		}
		return listConnections(ctx, os.Stdout, cmds)
	}
	return fmt.Errorf("unknown command %q", command)
}
