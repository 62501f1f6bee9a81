// Package sqs implements the Queuebacca broker contract over AWS SQS.
package sqs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/queuebacca/queuebacca-go/contracts"
	"github.com/queuebacca/queuebacca-go/serialization"
)

const (
	// maxMessageBytes is the SQS body-size ceiling: 256KB.
	maxMessageBytes = 262_144

	// maxReceiveCount caps messages per receive call.
	maxReceiveCount = 10

	// receiveWaitTime is the long-poll ceiling. Bounded so a cancelled
	// subscription unblocks within one poll even without abort support.
	receiveWaitTime = 20 * time.Second

	approximateReceiveCountAttribute          = "ApproximateReceiveCount"
	approximateFirstReceiveTimestampAttribute = "ApproximateFirstReceiveTimestamp"
)

// API is the subset of the SQS client the transport uses.
type API interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *awssqs.SendMessageBatchInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
}

// Client implements messaging.Client over AWS SQS.
type Client struct {
	api        API
	serializer serialization.Serializer
	bins       *BinRegistry
	logger     *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client over an existing SQS API client.
func NewClient(api API, serializer serialization.Serializer, bins *BinRegistry, options ...ClientOption) *Client {
	c := &Client{
		api:        api,
		serializer: serializer,
		bins:       bins,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// ConfigOptions configures NewClientFromConfig.
type ConfigOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewClientFromConfig builds the SQS API client from the AWS default config
// chain and wraps it. Static credentials are used when provided; otherwise
// the environment decides.
func NewClientFromConfig(ctx context.Context, cfg ConfigOptions, serializer serialization.Serializer, bins *BinRegistry, options ...ClientOption) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewClient(awssqs.NewFromConfig(awsCfg), serializer, bins, options...), nil
}

// SendMessage implements messaging.Client.
func (c *Client) SendMessage(ctx context.Context, bin contracts.MessageBin, message interface{}, delay time.Duration) (*contracts.OutgoingEnvelope, error) {
	queueURL, err := c.bins.QueueURL(bin)
	if err != nil {
		return nil, err
	}

	body, err := c.serializer.ToString(message)
	if err != nil {
		return nil, err
	}
	if len(body) > maxMessageBytes {
		return nil, contracts.NewConfigurationError("message exceeds max size of %dB (%dB)", maxMessageBytes, len(body))
	}

	out, err := c.api.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:     aws.String(queueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return nil, contracts.NewBrokerError("send", err)
	}

	c.logger.Info("sent SQS message", "bin", bin.Name(), "messageId", aws.ToString(out.MessageId))

	return &contracts.OutgoingEnvelope{
		MessageID:  aws.ToString(out.MessageId),
		Message:    message,
		RawMessage: body,
	}, nil
}

// SendMessages implements messaging.Client. Messages go out in batches of
// 10, the SQS restriction.
func (c *Client) SendMessages(ctx context.Context, bin contracts.MessageBin, messages []interface{}, delay time.Duration) ([]*contracts.OutgoingEnvelope, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	queueURL, err := c.bins.QueueURL(bin)
	if err != nil {
		return nil, err
	}

	sender := newBatchSender(c.api, c.serializer, c.logger.With("bin", bin.Name()))
	for _, message := range messages {
		if err := sender.add(message); err != nil {
			return nil, err
		}
	}
	return sender.send(ctx, queueURL, delay)
}

// RetrieveMessages implements messaging.Client. At most 10 messages come
// back per call regardless of maxMessages, the SQS restriction.
func (c *Client) RetrieveMessages(ctx context.Context, bin contracts.MessageBin, maxMessages int) ([]*contracts.IncomingEnvelope, error) {
	queueURL, err := c.bins.QueueURL(bin)
	if err != nil {
		return nil, err
	}

	if maxMessages > maxReceiveCount {
		maxMessages = maxReceiveCount
	}
	if maxMessages < 1 {
		maxMessages = 1
	}

	out, err := c.api.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(receiveWaitTime / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameApproximateFirstReceiveTimestamp,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrCancelled, err)
		}
		return nil, contracts.NewBrokerError("receive", err)
	}

	envelopes := make([]*contracts.IncomingEnvelope, 0, len(out.Messages))
	for _, msg := range out.Messages {
		env, err := c.mapMessage(msg)
		if err != nil {
			return nil, err
		}
		c.logger.Info("received SQS message", "bin", bin.Name(), "messageId", env.MessageID)
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// ReturnMessage implements messaging.Client as an SQS visibility change.
func (c *Client) ReturnMessage(ctx context.Context, bin contracts.MessageBin, env *contracts.IncomingEnvelope, delay time.Duration) error {
	return c.changeVisibility(ctx, bin, env.Receipt, delay, "return")
}

// DisposeMessage implements messaging.Client as an SQS delete.
func (c *Client) DisposeMessage(ctx context.Context, bin contracts.MessageBin, env *contracts.IncomingEnvelope) error {
	queueURL, err := c.bins.QueueURL(bin)
	if err != nil {
		return err
	}

	if _, err := c.api.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(env.Receipt),
	}); err != nil {
		return contracts.NewBrokerError("dispose", err)
	}
	return nil
}

// ExtendVisibility implements messaging.Client.
func (c *Client) ExtendVisibility(ctx context.Context, bin contracts.MessageBin, receipt string, timeout time.Duration) error {
	return c.changeVisibility(ctx, bin, receipt, timeout, "extend")
}

// VisibilityTimeout implements messaging.Client.
func (c *Client) VisibilityTimeout(bin contracts.MessageBin) time.Duration {
	return c.bins.VisibilityTimeout(bin)
}

func (c *Client) changeVisibility(ctx context.Context, bin contracts.MessageBin, receipt string, timeout time.Duration, op string) error {
	queueURL, err := c.bins.QueueURL(bin)
	if err != nil {
		return err
	}

	if _, err := c.api.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(queueURL),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: int32(timeout / time.Second),
	}); err != nil {
		return contracts.NewBrokerError(op, err)
	}
	return nil
}

func (c *Client) mapMessage(msg types.Message) (*contracts.IncomingEnvelope, error) {
	readCount, err := strconv.Atoi(msg.Attributes[approximateReceiveCountAttribute])
	if err != nil {
		return nil, contracts.NewBrokerError("receive", fmt.Errorf("invalid receive count attribute: %w", err))
	}

	firstReceivedMillis, err := strconv.ParseInt(msg.Attributes[approximateFirstReceiveTimestampAttribute], 10, 64)
	if err != nil {
		return nil, contracts.NewBrokerError("receive", fmt.Errorf("invalid first receive timestamp attribute: %w", err))
	}

	return &contracts.IncomingEnvelope{
		MessageID:     aws.ToString(msg.MessageId),
		Receipt:       aws.ToString(msg.ReceiptHandle),
		ReadCount:     readCount,
		FirstReceived: time.UnixMilli(firstReceivedMillis),
		RawMessage:    aws.ToString(msg.Body),
	}, nil
}
