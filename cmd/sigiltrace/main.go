package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/sigil-lang/sigil/internal/trace"

	_ "github.com/tliron/commonlog/simple"
)

// sigiltrace dumps a transition journal written by the scheduler's SQLite
// sink: one line per task or actor state transition, in recorded order.

const (
	colorReset  = "\x1b[0m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
	colorCyan   = "\x1b[36m"
)

func stateColor(to string) string {
	switch to {
	case "running", "completed", "idle":
		return colorGreen
	case "suspended", "busy":
		return colorYellow
	case "faulted", "cancelled":
		return colorRed
	}
	return colorCyan
}

func main() {
	kind := flag.String("kind", "", "only show transitions of this kind (task or actor)")
	verbose := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <journal.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	commonlog.Configure(*verbose, nil)
	log := commonlog.GetLogger("sigiltrace")

	path := flag.Arg(0)
	sink, err := trace.NewSQLiteSink(path)
	if err != nil {
		log.Errorf("open journal %s: %s", path, err)
		os.Exit(1)
	}
	defer sink.Close()

	events, err := sink.Events()
	if err != nil {
		log.Errorf("read journal %s: %s", path, err)
		os.Exit(1)
	}

	useColor := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	shown := 0
	for _, ev := range events {
		if *kind != "" && ev.Kind != *kind {
			continue
		}
		shown++
		name := ev.Name
		if name == "" {
			name = ev.ID
		}
		line := fmt.Sprintf("%s  %-5s %-20s %s -> %s",
			ev.Time.Format("15:04:05.000"), ev.Kind, name, ev.From, ev.To)
		if ev.Reason != "" {
			line += "  (" + ev.Reason + ")"
		}
		if useColor {
			fmt.Println(stateColor(ev.To) + line + colorReset)
		} else {
			fmt.Println(line)
		}
	}
	log.Infof("%d of %d transitions shown", shown, len(events))
}
