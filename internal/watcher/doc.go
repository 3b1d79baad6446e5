// Package watcher keeps the design library index fresh while files change.
//
// A LibraryWatcher follows the configured index paths with fsnotify,
// falling back to polling where inotify is unavailable (network mounts,
// container volumes). Events for files the indexer would never pick up
// are dropped, and the rest are coalesced by a Debouncer so a burst of
// saves or a git checkout produces one batch.
//
// A Runner turns each batch into one incremental index run:
//
//	w, err := watcher.New(watcher.OptionsFromConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Start(ctx) }()
//	defer w.Stop()
//
//	r := watcher.NewRunner(eng, logger)
//	return r.Run(ctx, w.Events())
package watcher
