package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"valor/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueuePublisher implements Notifier by enqueueing each notification on the
// notification queue for the notify worker.
type QueuePublisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

func NewQueuePublisher(client SQSSender, queueURL string, logger *slog.Logger) *QueuePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueuePublisher{
		client:   client,
		queueURL: queueURL,
		clock:    types.RealClock{},
		logger:   logger.With("component", "notification_queue"),
	}
}

func (q *QueuePublisher) PurchaseConfirmation(ctx context.Context, p Purchase) error {
	return q.publish(ctx, Message{Kind: KindPurchaseConfirmation, Purchase: &p})
}

func (q *QueuePublisher) OrderAlert(ctx context.Context, a OrderAlert) error {
	return q.publish(ctx, Message{Kind: KindOrderAlert, Order: &a})
}

func (q *QueuePublisher) ErrorAlert(ctx context.Context, a ErrorAlert) error {
	return q.publish(ctx, Message{Kind: KindErrorAlert, Error: &a})
}

func (q *QueuePublisher) StockAlert(ctx context.Context, a StockAlert) error {
	return q.publish(ctx, Message{Kind: KindStockAlert, Stock: &a})
}

func (q *QueuePublisher) publish(ctx context.Context, msg Message) error {
	msg.ID = uuid.New().String()
	msg.TraceID = types.GetRequestID(ctx)
	msg.CreatedAt = q.clock.Now()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notification queue: failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Kind)),
			},
		},
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("notification queue: failed to send message to %s: %w", q.queueURL, err)
	}

	q.logger.InfoContext(ctx, "notification message published",
		"message_id", msg.ID,
		"kind", string(msg.Kind),
		"trace_id", msg.TraceID,
	)
	return nil
}

// Dispatcher hands a dequeued Message to the Notifier that delivers it.
type Dispatcher struct {
	target Notifier
}

func NewDispatcher(target Notifier) *Dispatcher {
	return &Dispatcher{target: target}
}

// ErrMalformedMessage marks messages that can never be delivered; workers
// acknowledge them instead of retrying.
var ErrMalformedMessage = errors.New("malformed notification message")

// DispatchJSON decodes a queue message body and delivers it.
func (d *Dispatcher) DispatchJSON(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return d.Dispatch(ctx, msg)
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	switch {
	case msg.Kind == KindPurchaseConfirmation && msg.Purchase != nil:
		return d.target.PurchaseConfirmation(ctx, *msg.Purchase)
	case msg.Kind == KindOrderAlert && msg.Order != nil:
		return d.target.OrderAlert(ctx, *msg.Order)
	case msg.Kind == KindErrorAlert && msg.Error != nil:
		return d.target.ErrorAlert(ctx, *msg.Error)
	case msg.Kind == KindStockAlert && msg.Stock != nil:
		return d.target.StockAlert(ctx, *msg.Stock)
	default:
		return fmt.Errorf("%w: kind %q without payload", ErrMalformedMessage, msg.Kind)
	}
}

var _ Notifier = (*QueuePublisher)(nil)
