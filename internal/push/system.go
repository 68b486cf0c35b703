package push

import (
	"context"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/metrics"
	"github.com/gmsas95/dosekeeper/internal/notify"
	"go.uber.org/zap"
)

// SystemNotifier shows in-app alerts as OS notifications by pushing them to
// the patient's registered devices.
type SystemNotifier struct {
	store  Store
	sender Deliverer
	appURL string
	logger *zap.Logger
}

// NewSystemNotifier creates a notifier over the push sender
func NewSystemNotifier(st Store, sender Deliverer, appURL string, logger *zap.Logger) *SystemNotifier {
	return &SystemNotifier{store: st, sender: sender, appURL: appURL, logger: logger}
}

// NotifySystem implements notify.SystemNotifier. It returns false without an
// error when the patient has no registered device.
func (n *SystemNotifier) NotifySystem(ctx context.Context, patientID string, a notify.Alert) (bool, error) {
	if err := n.sender.Ready(); err != nil {
		return false, err
	}

	subs, err := n.store.ListPushSubscriptions(ctx, patientID)
	if err != nil {
		return false, err
	}
	if len(subs) == 0 {
		return false, nil
	}

	body, err := Payload{
		Title: a.Title,
		Body:  a.Body,
		Tag:   a.Tag(),
		URL:   DeepLink(n.appURL, a.Occurrence.ID),
	}.Encode()
	if err != nil {
		return false, errors.ErrServiceWorkerFailed.WithCause(err)
	}

	delivered := 0
	var lastErr error
	for _, sub := range subs {
		err := n.sender.Send(ctx, sub, body)
		switch {
		case err == nil:
			delivered++
			metrics.RecordPush("sent")
		case errors.Is(err, errors.ErrSubscriptionGone):
			metrics.RecordPush("gone")
			if err := n.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
				n.logger.Warn("Failed to prune push subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
				continue
			}
			metrics.RecordSubscriptionPruned()
		default:
			metrics.RecordPush("failed")
			lastErr = err
		}
	}

	if delivered > 0 {
		return true, nil
	}
	if lastErr != nil {
		return false, errors.ErrServiceWorkerFailed.WithCause(lastErr)
	}
	return false, nil
}
