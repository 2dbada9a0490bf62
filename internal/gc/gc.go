// Package gc periodically deletes staging files older than a
// configured maximum age that the upload pipeline never picked up
// (SPEC_FULL.md supplemental feature: garbage collection of orphan
// staging files, whose contract spec.md §1 states but leaves
// unspecified).
package gc

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Collector walks a staging directory on an interval, removing regular
// files whose modification time is older than MaxAge.
type Collector struct {
	StagingDir string
	MaxAge     time.Duration
	Interval   time.Duration
	Log        *logrus.Entry
}

// Run blocks, sweeping every Interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.sweep()
		}
	}
}

func (c *Collector) sweep() {
	cutoff := time.Now().Add(-c.MaxAge)
	_ = filepath.WalkDir(c.StagingDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rerr := os.Remove(path); rerr != nil {
				c.Log.WithError(rerr).WithField("path", path).Warn("gc: failed to remove orphan staging file")
			} else {
				c.Log.WithField("path", path).Debug("gc: removed orphan staging file")
			}
		}
		return nil
	})
}
