// Command docdb-tap is a transparent proxy that sits in front of a docdb
// server, forwarding every wire message untouched while publishing a
// taplog.Event per operation to any connected docdb-view.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/motoki-oss/docdb/detect"
	"github.com/motoki-oss/docdb/proxy/docdb"
	"github.com/motoki-oss/docdb/taplog"
	"github.com/motoki-oss/docdb/tapsrv"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("docdb-tap", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "docdb-tap — transparent proxy and tap server for docdb\n\nUsage:\n  docdb-tap [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	listen := fs.String("listen", "", "client listen address, e.g. :27018 (required)")
	upstream := fs.String("upstream", "", "upstream docdb server address (required)")
	tapAddr := fs.String("tap", ":27019", "address docdb-view connects to")
	nplus1Threshold := fs.Int("nplus1-threshold", 5, "N+1 detection threshold (0 to disable)")
	nplus1Window := fs.Duration("nplus1-window", time.Second, "N+1 detection time window")
	nplus1Cooldown := fs.Duration("nplus1-cooldown", 10*time.Second, "N+1 alert cooldown per (namespace, shape)")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("docdb-tap %s\n", version)
		return
	}

	if *listen == "" || *upstream == "" {
		fs.Usage()
		os.Exit(1)
	}

	if err := run(*listen, *upstream, *tapAddr, *nplus1Threshold, *nplus1Window, *nplus1Cooldown); err != nil {
		log.Fatal(err)
	}
}

func run(listen, upstream, tapAddr string, nplus1Threshold int, nplus1Window, nplus1Cooldown time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := taplog.New(256)

	var det *detect.Detector
	if nplus1Threshold > 0 {
		det = detect.New(nplus1Threshold, nplus1Window, nplus1Cooldown)
		log.Printf("N+1 detection enabled (threshold=%d, window=%s, cooldown=%s)",
			nplus1Threshold, nplus1Window, nplus1Cooldown)
	}

	tapServer := tapsrv.New(broker)
	go func() {
		log.Printf("tap server listening on %s", tapAddr)
		if err := tapServer.ListenAndServe(ctx, tapAddr); err != nil {
			log.Printf("tap server: %v", err)
		}
	}()

	p := docdb.New(listen, upstream, broker, det)
	log.Printf("proxying %s -> %s", listen, upstream)
	if err := p.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return nil
}
