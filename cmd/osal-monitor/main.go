package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/embedkit/osal"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML configuration")
		backendName = flag.String("backend", "native", "Execution backend: native or coop")
		ticks       = flag.Uint64("ticks", 200, "Demo workload duration in ticks")
		interactive = flag.Bool("i", false, "Interactive monitor TUI")
	)
	flag.Parse()

	cfg := osal.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg, err = osal.LoadConfig(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *backendName != "native" && *backendName != "coop" {
		fmt.Fprintln(os.Stderr, "Usage: osal-monitor [-config file.yaml] [-backend native|coop] [-ticks n]")
		fmt.Fprintln(os.Stderr, "       osal-monitor -i  (interactive monitor, native backend)")
		os.Exit(1)
	}

	if *interactive {
		if *backendName != "native" {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires the native backend")
			os.Exit(1)
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runDemo(cfg, *backendName, *ticks); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
