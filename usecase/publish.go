package usecase

import (
	"context"
	"time"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainPublisher "github.com/AzielCF/az-autopost/domains/publisher"
	"github.com/sirupsen/logrus"
)

// publishOutcome is what happened to one publish attempt after it was recorded.
type publishOutcome struct {
	TweetID    string
	Status     domainPost.Status
	RetryCount int
	Err        error
}

// publishAndRecord sends p to the platform and writes the result back to
// the store. A publish failure is recorded on the post, not returned; the
// returned error is only for store failures.
func publishAndRecord(ctx context.Context, store domainPost.IPostStore, publisher domainPublisher.IPublisher, p domainPost.Post, now time.Time, maxRetries int) (publishOutcome, error) {
	tweetID, pubErr := publisher.Publish(ctx, p.Draft)
	if pubErr == nil {
		patch := domainPost.Patch{
			Status:    domainPost.Ptr(domainPost.StatusPosted),
			TweetID:   &tweetID,
			PostedAt:  &now,
			LastError: domainPost.Ptr(""),
		}
		if err := store.Update(ctx, p.ID, patch); err != nil {
			logrus.WithError(err).Errorf("[SCHEDULER] post %s published as %s but the store update failed", p.ID, tweetID)
			return publishOutcome{TweetID: tweetID, Status: domainPost.StatusPosted, RetryCount: p.RetryCount}, err
		}
		logrus.Infof("[SCHEDULER] post %s published as %s", p.ID, tweetID)
		return publishOutcome{TweetID: tweetID, Status: domainPost.StatusPosted, RetryCount: p.RetryCount}, nil
	}

	retries := p.RetryCount + 1
	status := domainPost.StatusRetry
	if retries >= maxRetries {
		status = domainPost.StatusFailed
	}
	msg := pubErr.Error()
	patch := domainPost.Patch{
		Status:     &status,
		RetryCount: &retries,
		LastError:  &msg,
	}
	logrus.WithError(pubErr).Warnf("[SCHEDULER] publish failed for post %s (retry %d, now %s)", p.ID, retries, status)
	out := publishOutcome{Status: status, RetryCount: retries, Err: pubErr}
	if err := store.Update(ctx, p.ID, patch); err != nil {
		return out, err
	}
	return out, nil
}
