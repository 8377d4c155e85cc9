// Command edge compiles and runs JavaScript functions through the edge
// bridge, either once from the command line or behind an HTTP server.
//
//	edge run -e 'return function (x, cb) { cb(null, x * 2); }' -input 21
//	edge serve -addr :8080
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	edge "github.com/boomhut/goja-edge"
	"github.com/boomhut/goja-edge/internal/server"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "serve":
		err = serveCmd(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "edge:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  edge run   [-config file] [-syntax js|ts|jsx|tsx] [-input json] [-timeout d] (-e source | file)
  edge serve [-config file] [-addr :8080]`)
}

type common struct {
	config string
	debug  bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "YAML configuration file")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
}

func (c *common) bridge() (*edge.Bridge, *zap.Logger, error) {
	var log *zap.Logger
	var err error
	if c.debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, err
	}

	cfg := edge.DefaultConfig()
	if c.config != "" {
		cfg, err = edge.LoadConfig(c.config)
		if err != nil {
			return nil, nil, err
		}
	}
	return edge.New(edge.WithConfig(cfg), edge.WithLogger(log)), log, nil
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var c common
	c.register(fs)
	expr := fs.String("e", "", "function source")
	syntaxName := fs.String("syntax", "js", "source syntax")
	input := fs.String("input", "null", "JSON input")
	timeout := fs.Duration("timeout", 30*time.Second, "invocation timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	source := *expr
	if source == "" {
		if fs.NArg() != 1 {
			return fmt.Errorf("expected -e source or a single file")
		}
		code, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("failed to read source file: %w", err)
		}
		source = string(code)
	}

	syntax, err := edge.ParseSyntax(*syntaxName)
	if err != nil {
		return err
	}
	var payload interface{}
	if err := json.Unmarshal([]byte(*input), &payload); err != nil {
		return fmt.Errorf("invalid -input: %w", err)
	}

	b, log, err := c.bridge()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fn, err := b.CompileContext(ctx, source, edge.WithSyntax(syntax))
	if err != nil {
		return err
	}
	result, err := fn.InvokeContext(ctx, payload)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	addr := fs.String("addr", ":8080", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, log, err := c.bridge()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer b.Close()

	if err := b.Start(context.Background()); err != nil {
		return err
	}

	srv := server.New(b, log)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()
	return srv.Listen(*addr)
}
