package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/howeyc/fsnotify"

	"github.com/kmcq/crt/console"
)

// devMode runs the machine under a file watcher: whenever the boot
// script changes on disk, the machine is rebooted with the new script.
// With debug set, a tview debugger takes over the hosting terminal.
func devMode(gui, debug bool, scriptFile string) error {
	scriptFile = filepath.Clean(scriptFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Watch(filepath.Dir(scriptFile)); err != nil {
		return err
	}

	var (
		dbg   *debugView
		state console.StateFunc
	)
	if debug {
		dbg = newDebugView()
		state = dbg.StateFunc
	}
	runner := console.NewRunner(gui, true, state)
	if dbg != nil {
		dbg.run = runner
		runner.Serial = dbg.log
		log.SetPrefix("")
		log.SetOutput(dbg.log)
		go func() {
			if err := dbg.Run(); err != nil {
				log.Fatalf("debug: %v", err)
			}
			log.SetOutput(os.Stderr)
			log.SetPrefix("crt: ")
			runner.Exit()
		}()
	} else {
		go serialInput(runner)
	}

	scriptCh := make(chan []byte)
	go func() {
		started := false
		load := time.After(1 * time.Millisecond)
		for {
			select {
			case <-load:
				log.Printf("dev: load %s", filepath.Base(scriptFile))
				script, err := os.ReadFile(scriptFile)
				if err != nil {
					log.Printf("dev: %v", err)
					break
				}
				if !started {
					log.Printf("dev: start")
					scriptCh <- script
					started = true
				} else {
					log.Printf("dev: reset")
					runner.Swap(script)
				}
			case ev := <-watcher.Event:
				if ev.Name == scriptFile && !ev.IsAttrib() {
					load = time.After(100 * time.Millisecond)
				}
			case err := <-watcher.Error:
				log.Printf("dev: watcher: %v", err)
			}
		}
	}()
	code := runner.Run(<-scriptCh, shellMain)
	return fmt.Errorf("dev: exit code: %d", code)
}
