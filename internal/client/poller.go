package client

import (
	"context"
	"time"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/pkg/errors"
)

// DefaultPollInterval is used when Wait is given no interval.
const DefaultPollInterval = time.Second

// ProgressFunc is called with every polled state.
type ProgressFunc func(view *domain.DownloadView)

// Wait polls the job until it completes or fails, ctx is done, or a request
// errors. onPoll may be nil.
func (c *Client) Wait(ctx context.Context, downloadID string, interval time.Duration, onPoll ProgressFunc) (*domain.DownloadView, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := c.Get(ctx, downloadID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if onPoll != nil {
			onPoll(view)
		}
		if view.Status.IsTerminal() {
			return view, nil
		}

		select {
		case <-ctx.Done():
			return view, errors.Wrapf(ctx.Err(), "download %s still %s", downloadID, view.Status)
		case <-ticker.C:
		}
	}
}
