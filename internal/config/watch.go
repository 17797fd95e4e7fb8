package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file on every write and republishes the
// validated result. Reload errors (a transient partial write, an
// out-of-range schema version) are logged and otherwise ignored: the
// last good configuration remains in effect until a valid write lands.
type Watcher struct {
	path string
	w    *fsnotify.Watcher
	updC chan FileConfig
}

// NewWatcher loads path once, then starts watching it for further writes.
func NewWatcher(path string) (*Watcher, FileConfig, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, FileConfig{}, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, FileConfig{}, err
	}

	if err := w.Add(path); err != nil {
		_ = w.Close()

		return nil, FileConfig{}, err
	}

	cw := &Watcher{path: path, w: w, updC: make(chan FileConfig, 1)}

	go cw.loop()

	return cw, initial, nil
}

func (cw *Watcher) loop() {
	for {
		select {
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			fc, err := Load(cw.path)
			if err != nil {
				log.Printf("config: reload %s failed, keeping prior configuration: %v", cw.path, err)

				continue
			}

			select {
			case cw.updC <- fc:
			default:
				// Drain the stale pending update before publishing the
				// fresher one; callers only care about the latest.
				select {
				case <-cw.updC:
				default:
				}

				cw.updC <- fc
			}
		case err, ok := <-cw.w.Errors:
			if !ok {
				return
			}

			log.Printf("config: watch %s: %v", cw.path, err)
		}
	}
}

// Updates delivers each successfully reloaded configuration. Reads are
// non-blocking from the caller's perspective; at most the latest update
// is buffered.
func (cw *Watcher) Updates() <-chan FileConfig { return cw.updC }

// Close stops the watcher.
func (cw *Watcher) Close() error { return cw.w.Close() }
