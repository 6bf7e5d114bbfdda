package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vulntrack/api/pkg/logger"
)

// RemediationChannel is the Redis pub/sub channel for remediation events.
const RemediationChannel = "vulntrack:remediations"

// RemediationEvent is the message published when CVEs disappear from an
// asset's imported vulnerability set.
type RemediationEvent struct {
	Hostname     string   `json:"hostname"`
	CVEs         []string `json:"cves"`
	RemediatedAt int64    `json:"remediated_at"` // Unix timestamp
}

// RemediationPublisher publishes remediation events over Redis pub/sub so
// downstream consumers (ticketing, dashboards) learn about closed findings
// without polling. It implements the importer's Publisher port.
type RemediationPublisher struct {
	client *Client
	logger *logger.Logger
}

// NewRemediationPublisher creates a new RemediationPublisher.
func NewRemediationPublisher(client *Client, log *logger.Logger) *RemediationPublisher {
	return &RemediationPublisher{
		client: client,
		logger: log,
	}
}

// PublishRemediated publishes one event carrying every CVE remediated on the
// host in this import.
func (p *RemediationPublisher) PublishRemediated(ctx context.Context, hostname string, cves []string) error {
	event := RemediationEvent{
		Hostname:     hostname,
		CVEs:         cves,
		RemediatedAt: time.Now().Unix(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal remediation event: %w", err)
	}

	if err := p.client.Client().Publish(ctx, RemediationChannel, data).Err(); err != nil {
		return fmt.Errorf("publish remediation event: %w", err)
	}

	p.logger.Debug("published remediation event",
		"hostname", hostname,
		"cves", len(cves),
	)

	return nil
}
