package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/livepoll/internal/client/cli"
	"github.com/dmitrijs2005/livepoll/internal/client/config"
	"github.com/dmitrijs2005/livepoll/internal/client/runtime"
	"github.com/dmitrijs2005/livepoll/internal/filex"
	"github.com/dmitrijs2005/livepoll/internal/flagx"
	"github.com/dmitrijs2005/livepoll/internal/logging"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	if _, err := filex.EnsureParentDir(cfg.LogFile); err != nil {
		log.Fatalf("%v", err)
	}

	logger, closer, err := logging.NewFileLogger(logging.FileOptions{
		Path:       cfg.LogFile,
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closer.Close()

	rt, err := runtime.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer rt.Close()

	app := cli.NewApp(rt, os.Stdin, os.Stdout)
	app.Run(ctx, linkFlag(os.Args[1:]))

}

// linkFlag returns the value of -link: a share link or poll id to open at
// start.
func linkFlag(args []string) string {
	fs := flag.NewFlagSet("link", flag.ContinueOnError)
	link := fs.String("link", "", "poll link or id to open")
	_ = fs.Parse(flagx.FilterArgs(args, []string{"-link"}))
	return *link
}
