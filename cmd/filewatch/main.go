// Command filewatch watches one or more files beneath a root directory
// and prints structured modification events as they occur.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/watchline/filewatch"
)

var usage = `
filewatch watches files beneath a root directory and prints a
line-level diff whenever one of them is created, changed, or deleted.

Usage:

    filewatch ROOT FILE...

ROOT is the directory the watched files must live beneath. Each FILE is
a path to a file to watch, absolute or relative to ROOT.
`[1:]

func exit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, filepath.Base(os.Args[0])+": "+format+"\n", a...)
	fmt.Print("\n" + usage)
	os.Exit(1)
}

// printTime prints a line prefixed with the current time, at enough
// granularity to distinguish events without the noise of a full date.
func printTime(s string, args ...interface{}) {
	fmt.Printf(time.Now().Format("15:04:05.0000")+" "+s+"\n", args...)
}

func main() {
	if len(os.Args) < 3 {
		exit("usage: filewatch ROOT FILE...")
	}

	root := os.Args[1]
	files := os.Args[2:]

	shadowRoot, err := os.MkdirTemp("", "filewatch-shadow-")
	if err != nil {
		exit("creating shadow root: %s", err)
	}

	n, err := filewatch.New(root, shadowRoot)
	if err != nil {
		exit("creating notifier: %s", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		printTime("shutting down")
		if err := n.Stop(); err != nil {
			printTime("error stopping: %s", err)
		}
		os.Exit(0)
	}()

	observer := filewatch.ObserverFunc(func(e filewatch.Event) {
		printTime("%s", e.Path)
		fmt.Println(strings.Join(e.Diff, "\n"))
	})

	for _, f := range files {
		if err := n.AddObserver(f, observer); err != nil {
			exit("%q: %s", f, err)
		}
	}

	printTime("ready; watching %d file(s), press ^C to exit", len(files))
	<-make(chan struct{}) // Block forever; the signal goroutine exits the process.
}
