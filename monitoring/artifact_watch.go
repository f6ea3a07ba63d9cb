package monitoring

import (
	"github.com/fsnotify/fsnotify"

	"churnserve/artifact"
	"churnserve/logging"
)

// ArtifactWatcher observes the artifact directory and flags when a run
// newer than the one being served lands on disk. It never triggers a
// reload; artifacts change only on explicit redeploy. The signal is a
// gauge operators can alert on.
type ArtifactWatcher struct {
	store     *artifact.Store
	activeRun string
	collector *Collector
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

func NewArtifactWatcher(store *artifact.Store, activeRun string, collector *Collector) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(store.Dir()); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &ArtifactWatcher{
		store:     store,
		activeRun: activeRun,
		collector: collector,
		watcher:   watcher,
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *ArtifactWatcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0 {
				w.check()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.L().Debugw("artifact watch error", "error", err)
		}
	}
}

func (w *ArtifactWatcher) check() {
	runs, err := w.store.Runs()
	if err != nil || len(runs) == 0 {
		return
	}
	pending := 0.0
	if runs[0] != w.activeRun {
		pending = 1.0
		logging.L().Infow("newer artifact run on disk, redeploy to serve it",
			"active_run", w.activeRun,
			"newest_run", runs[0],
		)
	}
	w.collector.SetGauge("artifact_pending_redeploy", pending, nil)
}

// Stop ends the watch loop.
func (w *ArtifactWatcher) Stop() {
	w.watcher.Close()
	<-w.done
}
