// Command docdb-view is a terminal UI that watches a docdb-tap server and
// displays captured operations as they arrive.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/motoki-oss/docdb/tapview"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("docdb-view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "docdb-view — watch docdb traffic in real-time\n\nUsage:\n  docdb-view [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	addr := fs.String("addr", "127.0.0.1:27019", "docdb-tap tap server address")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("docdb-view %s\n", version)
		return
	}

	p := tea.NewProgram(tapview.New(*addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "docdb-view: %v\n", err)
		os.Exit(1)
	}
}
