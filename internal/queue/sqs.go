package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const sqsWaitTimeSeconds = 20

// SQSClient publishes and consumes task messages through one SQS queue.
// Redelivery relies on the queue's visibility timeout: messages are deleted
// only after the handler returns nil.
type SQSClient struct {
	client   *sqs.Client
	queueURL string
	prefetch int
}

// NewSQSClient builds a client from the ambient AWS credential chain.
func NewSQSClient(ctx context.Context, region, queueURL string, prefetch int) (*SQSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if prefetch < 1 {
		prefetch = 1
	}
	if prefetch > 10 {
		// SQS caps a single receive at 10 messages.
		prefetch = 10
	}

	return &SQSClient{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
		prefetch: prefetch,
	}, nil
}

// Publish sends a task as a JSON message body.
func (c *SQSClient) Publish(ctx context.Context, msg TaskMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send to SQS: %w", err)
	}

	return nil
}

// Consume long-polls the queue until ctx is cancelled. Successfully handled
// messages are deleted; failed ones are left to reappear after the visibility
// timeout. Malformed payloads are deleted immediately.
func (c *SQSClient) Consume(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return nil
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: int32(c.prefetch),
			WaitTimeSeconds:     sqsWaitTimeSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to receive from SQS: %w", err)
		}

		for _, raw := range out.Messages {
			var msg TaskMessage
			if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &msg); err != nil {
				slog.Warn("Dropping malformed task message", "error", err)
				c.delete(ctx, raw)
				continue
			}

			wg.Add(1)
			go func(msg TaskMessage, raw sqstypes.Message) {
				defer wg.Done()
				if err := handler(ctx, msg); err != nil {
					slog.Error("Task handler failed, leaving for redelivery", "job", msg.JobID, "error", err)
					return
				}
				c.delete(ctx, raw)
			}(msg, raw)
		}
	}
}

func (c *SQSClient) delete(ctx context.Context, raw sqstypes.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: raw.ReceiptHandle,
	})
	if err != nil {
		slog.Warn("Failed to delete SQS message", "error", err)
	}
}

// Close is a no-op; the SQS client holds no persistent connection.
func (c *SQSClient) Close() error {
	return nil
}
