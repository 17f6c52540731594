package profile

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Recorder saves a profile for every calibration-complete event.
type Recorder struct {
	store    *Store
	cameraID int
	screen   func() (float64, float64)
}

// NewRecorder creates a recorder that tags profiles with the camera and
// the screen size reported by screen at save time.
func NewRecorder(store *Store, cameraID int, screen func() (float64, float64)) *Recorder {
	return &Recorder{
		store:    store,
		cameraID: cameraID,
		screen:   screen,
	}
}

// Run consumes sub until ctx is cancelled or sub closes.
func (r *Recorder) Run(ctx context.Context, sub *gaze.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := r.Record(ctx, ev); err != nil {
				r.store.logger.Warn("calibration profile not saved", "session", ev.SessionID, "error", err)
			}
		}
	}
}

// Record saves ev if it reports a completed calibration. Other events
// are ignored and return ok=false.
func (r *Recorder) Record(ctx context.Context, ev gaze.Event) (ok bool, err error) {
	if ev.Type != gaze.EventCalibrationComplete || ev.Complete == nil {
		return false, nil
	}
	w, h := r.screen()
	_, err = r.store.Save(ctx, Profile{
		SessionID:    ev.Complete.SessionID,
		CameraID:     r.cameraID,
		ScreenWidth:  w,
		ScreenHeight: h,
		Model:        ev.Complete.Model,
		PointsUsed:   ev.Complete.PointsUsed,
		CreatedAt:    ev.Time,
	})
	return err == nil, err
}

// Loader installs a calibration model, e.g. *gaze.Tracker.
type Loader interface {
	LoadCalibration(ctx context.Context, m gaze.Model) error
}

// Restore loads the latest profile for the recorder's camera into t.
// It returns ErrNotFound when nothing was saved yet, and ErrScreenMismatch
// without loading anything when the profile's screen differs from the
// current one. A current size of zero skips the screen check.
func (r *Recorder) Restore(ctx context.Context, t Loader) (Profile, error) {
	p, err := r.store.Latest(ctx, r.cameraID)
	if err != nil {
		return Profile{}, err
	}
	if w, h := r.screen(); w > 0 && h > 0 && (w != p.ScreenWidth || h != p.ScreenHeight) {
		return p, fmt.Errorf("%w: profile %s is %vx%v, screen is %vx%v",
			ErrScreenMismatch, p.ID, p.ScreenWidth, p.ScreenHeight, w, h)
	}
	if err := t.LoadCalibration(ctx, p.Model); err != nil {
		return Profile{}, err
	}
	r.store.logger.Info("calibration profile restored", "id", p.ID, "created", p.CreatedAt)
	return p, nil
}
