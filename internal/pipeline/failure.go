package pipeline

import (
	"context"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/andresuchdata/fetchvault/internal/repository"
	"github.com/pkg/errors"
)

// MarkFailed records cause on a job that has not reached a terminal state.
// A pending job is moved through downloading first so every failed job has
// followed pending -> downloading -> failed. Terminal jobs are left alone.
func MarkFailed(ctx context.Context, repo repository.DownloadRepository, downloadID string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	current, err := repo.Get(ctx, downloadID)
	if err != nil {
		return errors.Wrapf(err, "load download %s", downloadID)
	}
	if current.Status.IsTerminal() {
		return nil
	}

	if current.Status == domain.StatusPending {
		if _, err := repo.UpdateFields(ctx, downloadID, domain.DownloadUpdate{
			Status: domain.StatusPtr(domain.StatusDownloading),
		}); err != nil {
			return errors.Wrapf(err, "set status %s", domain.StatusDownloading)
		}
	}

	if _, err := repo.UpdateFields(ctx, downloadID, domain.DownloadUpdate{
		Status: domain.StatusPtr(domain.StatusFailed),
		Error:  domain.StringPtr(cause.Error()),
	}); err != nil {
		return errors.Wrapf(err, "set status %s", domain.StatusFailed)
	}
	return nil
}
