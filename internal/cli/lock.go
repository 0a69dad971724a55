package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
)

// lockDirs returns the directories a run writes into: the target root, or
// every source root when converting in place.
func lockDirs(opts dispatch.Options) []string {
	if opts.TargetRoot != "" {
		return []string{opts.TargetRoot}
	}
	return opts.SourceRoots
}

// acquireLocks takes an exclusive, non-blocking lock in each directory. On
// failure the locks already taken are released. The returned func releases
// every lock.
func acquireLocks(dirs []string) (func() error, error) {
	held := make([]*flock.Flock, 0, len(dirs))
	release := func() error {
		var errs []error
		for _, l := range held {
			errs = append(errs, l.Unlock())
		}
		return errors.Join(errs...)
	}

	for _, dir := range dirs {
		l := flock.New(filepath.Join(dir, dispatch.LockFileName))
		ok, err := l.TryLock()
		if err != nil {
			_ = release()
			return nil, fmt.Errorf("acquire lock in '%s': %w", dir, err)
		}
		if !ok {
			_ = release()
			return nil, fmt.Errorf("%w: %s", dispatch.ErrLocked, l.Path())
		}
		held = append(held, l)
	}
	return release, nil
}
