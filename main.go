// Command crt emulates a classic PC text console: an 80x25 character
// grid driven by a kernel-style line discipline, with a small built-in
// shell as the guest program.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/pprof"

	"github.com/kmcq/crt/console"
)

func main() {
	log.SetPrefix("crt: ")
	log.SetFlags(0)

	var (
		cliFlag   = flag.Bool("cli", false, "run in the terminal instead of a window")
		devFlag   = flag.Bool("dev", false, "enable developer mode (live re-run the boot script on change)")
		debugFlag = flag.Bool("debug", false, "enable debugger (implies -dev)")

		cpuProfileFlag = flag.String("cpu_profile", "", "write CPU profile to `file`")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-cli] [boot.script]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s [-cli] <-dev | -debug> boot.script\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	if flag.NArg() > 1 {
		flag.Usage()
	}

	if *devFlag || *debugFlag {
		if flag.NArg() != 1 {
			flag.Usage()
		}
		if err := devMode(!*cliFlag, *debugFlag, flag.Arg(0)); err != nil {
			log.Fatal(err)
		}
		return
	}

	var cpuProfile io.Closer
	if prof := *cpuProfileFlag; prof != "" {
		f, err := os.Create(prof)
		if err != nil {
			log.Fatalf("creating CPU profile file: %v", err)
		}
		pprof.StartCPUProfile(f)
		cpuProfile = f
	}

	code, err := run(flag.Arg(0), !*cliFlag)

	if f := cpuProfile; f != nil {
		pprof.StopCPUProfile()
		f.Close()
	}

	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

func run(scriptFile string, guiEnabled bool) (int, error) {
	var script []byte
	if scriptFile != "" {
		var err error
		script, err = os.ReadFile(scriptFile)
		if err != nil {
			return 0, err
		}
	}

	if guiEnabled {
		r := console.NewRunner(true, false, nil)
		go serialInput(r)
		return r.Run(script, shellMain), nil
	}

	r := console.NewRunner(false, false, nil)
	r.Serial = io.Discard // the TUI owns the terminal
	return runTUI(r, script)
}

// serialInput feeds stdin into the keyboard path, so the machine can be
// driven from a pipe or the launching terminal.
func serialInput(r *console.Runner) {
	var b [1]byte
	for {
		if _, err := os.Stdin.Read(b[:]); err != nil {
			if err != io.EOF {
				log.Printf("reading stdin: %v", err)
			}
			return
		}
		c := r.Console()
		if c == nil {
			continue
		}
		sent := false
		c.Intr(func() int {
			if sent {
				return -1
			}
			sent = true
			return int(b[0])
		})
	}
}
