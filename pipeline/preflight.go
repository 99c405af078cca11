package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	upload "beat-publish-pipeline/07_upload"
	"beat-publish-pipeline/browser"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	// ErrPreflight marks a credential problem found before any stage ran.
	ErrPreflight = errors.New("preflight failed")
	// ErrLocked is returned when another run holds the pipeline lock.
	ErrLocked = errors.New("another pipeline run is in progress")
)

// Preflight loads the storefront session and refreshes the video platform
// token. Both must succeed before a run starts.
func Preflight(sessionPath string, ts oauth2.TokenSource, log *zap.SugaredLogger) (*browser.StorageState, error) {
	state, err := browser.LoadState(sessionPath)
	if err != nil {
		return nil, fmt.Errorf("%w: storefront session %s: %v (run the auth command)", ErrPreflight, sessionPath, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: storefront session %s: %v", ErrPreflight, sessionPath, err)
	}
	if expired := state.Expired(time.Now()); len(expired) > 0 {
		log.Warnw("storefront session has expired cookies", "cookies", expired)
	}
	if err := upload.CheckToken(ts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreflight, err)
	}
	log.Infow("preflight passed", "session_cookies", len(state.Cookies))
	return state, nil
}

// Lock takes the single-run lock at path. unlock releases it.
func Lock(path string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	return fl.Unlock, nil
}
