package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kmcq/crt/console"
)

// shellMain is the guest program: a minimal line-oriented shell that
// talks to the machine exclusively through the console device.
func shellMain(ctx context.Context, c *console.Console) int {
	dev, ok := console.LookupDevice(console.ConsoleID)
	if !ok {
		log.Printf("shell: console device not registered")
		return 1
	}
	start := time.Now()

	dev.Write([]byte("crt shell; 'help' lists commands\n"))
	var line [128]byte
	for {
		dev.Write([]byte("$ "))
		n, err := dev.Read(ctx, line[:])
		if err != nil {
			return 1
		}
		if n == 0 { // end of input
			return 0
		}
		cmd := strings.TrimRight(string(line[:n]), "\n")
		name, arg, _ := strings.Cut(strings.TrimSpace(cmd), " ")
		arg = strings.TrimSpace(arg)

		switch name {
		case "":

		case "echo":
			dev.Write([]byte(arg + "\n"))

		case "date":
			dev.Write([]byte(time.Now().Format(time.UnixDate) + "\n"))

		case "uptime":
			fmt.Fprintf(writerFor(dev), "up %v\n", time.Since(start).Round(time.Second))

		case "cat":
			if err := catFile(dev, arg); err != nil {
				fmt.Fprintf(writerFor(dev), "cat: %v\n", err)
			}

		case "halt":
			if arg == "" {
				arg = "halted by shell"
			}
			c.Halt(arg)
			return 1 // not reached; Halt does not return

		case "exit":
			code := 0
			if arg != "" {
				v, err := strconv.Atoi(arg)
				if err != nil {
					dev.Write([]byte("exit: bad code\n"))
					continue
				}
				code = v
			}
			return code

		case "help":
			dev.Write([]byte("commands: echo date uptime cat halt exit help\n"))

		default:
			dev.Write([]byte(name + ": not found\n"))
		}
	}
}

// catFile writes the named file to the console. Names are relative to
// the working directory; paths that escape it are rejected.
func catFile(dev console.Device, name string) error {
	if name == "" {
		return fmt.Errorf("missing file name")
	}
	name = path.Clean(name)
	if path.IsAbs(name) || strings.HasPrefix(name, "../") {
		return fmt.Errorf("bad file name %q", name)
	}
	b, err := os.ReadFile(filepath.FromSlash(name))
	if err != nil {
		return err
	}
	if _, err := dev.Write(b); err != nil {
		return err
	}
	if len(b) > 0 && b[len(b)-1] != '\n' {
		dev.Write([]byte("\n"))
	}
	return nil
}

// writerFor adapts a device's write half to io.Writer for fmt.
func writerFor(dev console.Device) deviceWriter { return deviceWriter{dev} }

type deviceWriter struct{ dev console.Device }

func (w deviceWriter) Write(p []byte) (int, error) { return w.dev.Write(p) }
