package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/gmsas95/dosekeeper/internal/metrics"
	"github.com/gmsas95/dosekeeper/internal/schedule"
	"github.com/gmsas95/dosekeeper/internal/store"
	"go.uber.org/zap"
)

// Alert kinds
const (
	KindDue      = "due"
	KindReminder = "reminder"
	KindSnooze   = "snooze"
)

// Delivery channels
const (
	ChannelSystem = "system"
	ChannelLocal  = "local"
	ChannelToast  = "toast"
)

// ReenableHint is appended to toasts while device notifications are blocked
const ReenableHint = "Notifications are turned off for this device. Allow them in your browser's site settings to get alerts while the app is closed."

// Alert is one user-facing dose alert
type Alert struct {
	Kind       string              `json:"kind"`
	Title      string              `json:"title"`
	Body       string              `json:"body"`
	Occurrence schedule.Occurrence `json:"occurrence"`
}

// Tag is the OS-level collapse key for the alert
func (a Alert) Tag() string {
	return a.Occurrence.ID
}

// NewAlert builds the alert text for an occurrence
func NewAlert(kind string, occ schedule.Occurrence) Alert {
	a := Alert{Kind: kind, Occurrence: occ}

	detail := occ.Dosage
	switch occ.Instruction {
	case schedule.BeforeFood:
		detail = strings.TrimSpace(detail + " before food")
	case schedule.AfterFood:
		detail = strings.TrimSpace(detail + " after food")
	}

	switch kind {
	case KindReminder:
		a.Title = fmt.Sprintf("Reminder: %s", occ.MedicineName)
		a.Body = fmt.Sprintf("You haven't marked %s as taken yet.", occ.MedicineName)
		if detail != "" {
			a.Body = fmt.Sprintf("You haven't marked %s (%s) as taken yet.", occ.MedicineName, detail)
		}
	default:
		a.Title = fmt.Sprintf("Time to take %s", occ.MedicineName)
		a.Body = detail
		if a.Body == "" {
			a.Body = fmt.Sprintf("Scheduled for %s", occ.ScheduledAt.Format("15:04"))
		}
	}
	return a
}

// SystemNotifier shows a notification through the device's push worker.
// It returns false when the patient has no active worker.
type SystemNotifier interface {
	NotifySystem(ctx context.Context, patientID string, a Alert) (bool, error)
}

// LocalNotifier shows a plain notification inside an open app window
type LocalNotifier interface {
	Notify(patientID, title, body, tag string) bool
}

// Toaster shows an in-app toast
type Toaster interface {
	Toast(patientID, level, message string)
}

// Preferences reports the device permission state
type Preferences interface {
	GetPreference(ctx context.Context, patientID string) (*store.NotificationPreference, error)
}

// Delivery reports where an alert was shown
type Delivery struct {
	System bool
	Local  bool
	Toast  bool
}

// Dispatcher delivers alerts: the system notification when permitted and a
// worker is active, else a local notification, and a toast in every case.
type Dispatcher struct {
	system SystemNotifier
	local  LocalNotifier
	toast  Toaster
	prefs  Preferences
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher. system and local may be nil.
func NewDispatcher(system SystemNotifier, local LocalNotifier, toast Toaster, prefs Preferences, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		system: system,
		local:  local,
		toast:  toast,
		prefs:  prefs,
		logger: logger,
	}
}

// Deliver shows the alert on the best available channel plus a toast
func (d *Dispatcher) Deliver(ctx context.Context, patientID string, a Alert) Delivery {
	var out Delivery

	granted := d.permissionGranted(ctx, patientID)

	if granted && d.system != nil {
		ok, err := d.system.NotifySystem(ctx, patientID, a)
		if err != nil {
			d.logger.Warn("System notification failed, falling back",
				zap.String("patient_id", patientID),
				zap.String("occurrence_id", a.Occurrence.ID),
				zap.Error(err),
			)
		}
		out.System = ok && err == nil
	}

	if !out.System && d.local != nil {
		out.Local = d.local.Notify(patientID, a.Title, a.Body, a.Tag())
	}

	message := a.Title
	if a.Body != "" {
		message = a.Title + ". " + a.Body
	}
	level := "info"
	if a.Kind == KindReminder {
		level = "warning"
	}
	if !granted {
		message = message + " " + ReenableHint
	}
	if d.toast != nil {
		d.toast.Toast(patientID, level, message)
		out.Toast = true
	}

	switch {
	case out.System:
		metrics.RecordAlert(a.Kind, ChannelSystem)
	case out.Local:
		metrics.RecordAlert(a.Kind, ChannelLocal)
	}
	if out.Toast {
		metrics.RecordAlert(a.Kind, ChannelToast)
	}

	d.logger.Info("Dose alert fired",
		zap.String("patient_id", patientID),
		zap.String("occurrence_id", a.Occurrence.ID),
		zap.String("kind", a.Kind),
		zap.Bool("system", out.System),
		zap.Bool("local", out.Local),
	)
	return out
}

func (d *Dispatcher) permissionGranted(ctx context.Context, patientID string) bool {
	if d.prefs == nil {
		return false
	}
	pref, err := d.prefs.GetPreference(ctx, patientID)
	if err != nil {
		d.logger.Warn("Could not read notification preference", zap.String("patient_id", patientID), zap.Error(err))
		return false
	}
	if !pref.Granted() {
		d.logger.Warn("Notification permission not granted, degrading to in-app alerts",
			zap.String("patient_id", patientID),
			zap.String("permission", pref.Permission),
		)
		return false
	}
	return true
}
