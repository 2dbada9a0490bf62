// Package recovery re-enqueues files left in staging from a prior
// process run (component K): on startup, any metadata doc with
// status=staging or a lingering local_path is handed back to the
// upload queue so an unclean shutdown never strands bytes.
package recovery

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nebulaftp/nebulaftp/internal/store"
	"github.com/nebulaftp/nebulaftp/internal/upload"
	"github.com/nebulaftp/nebulaftp/internal/vpath"
)

// Run queries st.FindPending and pushes one Task per recoverable
// document onto queue. Documents whose name ends in ".partial", or
// whose local_path is missing or empty on disk, are skipped, matching
// the worker loop's own defensive checks so recovery never resurrects
// a file the normal pipeline would reject.
func Run(ctx context.Context, st store.Store, queue *upload.Queue, log *logrus.Entry) (int, error) {
	lister, err := st.FindPending(ctx)
	if err != nil {
		return 0, err
	}
	defer lister.Close(ctx)

	var recovered int
	for {
		n, ok, err := lister.Next(ctx)
		if err != nil {
			return recovered, err
		}
		if !ok {
			break
		}
		if vpath.IsPartial(n.Name) {
			continue
		}
		if n.LocalPath == "" {
			continue
		}
		fi, statErr := os.Stat(n.LocalPath)
		if statErr != nil || fi.Size() == 0 {
			continue
		}
		queue.Push(upload.Task{
			LocalPath: n.LocalPath,
			Filename:  n.Name,
			Parent:    n.Parent,
			Size:      fi.Size(),
		})
		recovered++
		log.WithField("file", n.Path()).Info("recovered pending upload")
	}
	return recovered, nil
}
