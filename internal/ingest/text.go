package ingest

import "fmt"

// alertText derives the human-readable message text for a new alert. Alerts
// created by Sloth carry a "summary" annotation which wins outright; otherwise
// the text is assembled from well-known labels, most specific first.
func alertText(a WebhookAlert, p *WebhookPayload) string {
	if summary, ok := a.Annotations["summary"]; ok {
		return summary
	}

	var text string
	switch {
	case hasLabel(a, p, "alertname", "InstanceDown"):
		instance, ok := label(a, p, "kubernetes_pod_name")
		if !ok {
			instance, ok = label(a, p, "instance")
		}
		if !ok {
			instance = "unknown"
		}
		text = fmt.Sprintf("Instance %q down", instance)
	case hasLabel(a, p, "category", "success-rate"):
		text = "High Error Rate"
	case hasLabel(a, p, "category", "latency"):
		text = "High Latency"
	default:
		if slo, ok := label(a, p, "sloth_slo"); ok {
			text = fmt.Sprintf("SLO %q in danger", slo)
		} else {
			text = "Alert"
		}
	}

	if service, ok := label(a, p, "sloth_service"); ok {
		text += fmt.Sprintf(" for %q", service)
	}
	if environment, ok := label(a, p, "environment"); ok {
		text += fmt.Sprintf(" [environment=%s]", environment)
	}

	return text
}

func hasLabel(a WebhookAlert, p *WebhookPayload, key, want string) bool {
	v, ok := label(a, p, key)
	return ok && v == want
}
