package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"

	"github.com/Julienbatt/DringDring-sub000/config"
)

// Event types published on the billing queue.
const (
	EventDeliveryCreated = "billing.delivery.created"
	EventPeriodFrozen    = "billing.period.frozen"
	EventDocumentFrozen  = "billing.document.frozen"
	EventRunAggregated   = "billing.run.aggregated"
)

// Publisher emits billing lifecycle events for downstream consumers
// (accounting export, notifications). A nil Publisher is a no-op.
type Publisher interface {
	Publish(ctx context.Context, eventType string, body interface{}) error
	Close() error
}

type serviceBusPublisher struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
}

// NewServiceBusPublisher creates a publisher on the configured queue.
// An empty connection string disables publishing.
func NewServiceBusPublisher(cfg config.ServiceBusConfig) (Publisher, error) {
	if cfg.ConnectionString == "" {
		return nil, nil
	}
	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}
	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}
	return &serviceBusPublisher{client: client, sender: sender}, nil
}

func (p *serviceBusPublisher) Publish(ctx context.Context, eventType string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event body")
	}
	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"event_type": eventType,
			"time":       time.Now().UTC().Format(time.RFC3339),
		},
	}
	return p.sender.SendMessage(ctx, msg, nil)
}

func (p *serviceBusPublisher) Close() error {
	if p.sender != nil {
		if err := p.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(context.Background())
	}
	return nil
}
