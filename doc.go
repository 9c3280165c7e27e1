// Package filewatch coordinates observers with file content changes
// beneath a single root directory.
//
// A Notifier maintains a shadow copy of every currently observed file,
// multiplexes per-directory native OS watch handles against per-file
// observer sets, and delivers a structured Event — containing the
// affected path, a timestamp, and a line-level diff against the
// file's last known content — to every registered Observer whenever a
// watched file is created, changed, or deleted.
//
//	n, err := filewatch.New(root, shadowRoot)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer n.Stop()
//
//	err = n.AddObserver(filepath.Join(root, "config.yaml"), filewatch.ObserverFunc(func(e filewatch.Event) {
//		fmt.Println(e.Path, strings.Join(e.Diff, "\n"))
//	}))
//
// The line-diff engine (Diff, FileDiff, Identical) is exported
// independently of the coordination engine and may be used on its own.
package filewatch
