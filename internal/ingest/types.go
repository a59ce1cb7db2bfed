package ingest

import (
	"fmt"
	"time"
)

// SupportedVersion is the only Alertmanager webhook protocol version Herald
// accepts.
const SupportedVersion = "4"

// Alert statuses as delivered by Alertmanager.
const (
	StatusFiring   = "firing"
	StatusResolved = "resolved"
)

// UnexpectedVersionError is returned for webhook payloads with an unsupported
// protocol version.
type UnexpectedVersionError struct {
	Got string
}

func (e *UnexpectedVersionError) Error() string {
	return fmt.Sprintf("unexpected webhook version %q (want %q)", e.Got, SupportedVersion)
}

// WebhookAlert is one alert inside an Alertmanager webhook batch.
type WebhookAlert struct {
	// Fingerprint identifies the alert group for dedup.
	Fingerprint string `json:"fingerprint"`

	Status string `json:"status"`

	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`

	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`

	// GeneratorURL identifies the entity that caused the alert.
	GeneratorURL string `json:"generatorURL"`
}

func (a WebhookAlert) resolved() bool {
	return a.Status == StatusResolved
}

// WebhookPayload is the Alertmanager webhook envelope.
type WebhookPayload struct {
	// Version is the webhook protocol version; always expected to be "4".
	Version string `json:"version"`

	// GroupKey identifies the group of alerts.
	GroupKey string `json:"groupKey"`

	// TruncatedAlerts counts alerts dropped by the "max_alerts" setting.
	TruncatedAlerts int `json:"truncatedAlerts"`

	Status   string `json:"status"`
	Receiver string `json:"receiver"`

	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`

	// ExternalURL is a backlink to the Alertmanager.
	ExternalURL string `json:"externalURL"`

	Alerts []WebhookAlert `json:"alerts"`
}

// label looks a key up in the per-alert labels first, falling back to the
// batch-level common labels.
func label(a WebhookAlert, p *WebhookPayload, key string) (string, bool) {
	if v, ok := a.Labels[key]; ok {
		return v, true
	}
	v, ok := p.CommonLabels[key]
	return v, ok
}

func labelPtr(a WebhookAlert, p *WebhookPayload, key string) *string {
	if v, ok := label(a, p, key); ok {
		return &v
	}
	return nil
}
