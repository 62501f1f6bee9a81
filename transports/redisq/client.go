// Package redisq implements the Queuebacca broker contract on Redis,
// emulating visibility-timeout semantics with a lease set per bin. Delivery
// is at-least-once: a lease that expires before disposition puts the message
// back on the ready list with an incremented read count.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/queuebacca/queuebacca-go/contracts"
	"github.com/queuebacca/queuebacca-go/serialization"
)

const (
	defaultVisibilityTimeout = 30 * time.Second
	defaultPollInterval      = 100 * time.Millisecond

	// receiveWaitTime bounds a single long-poll, mirroring the SQS ceiling.
	receiveWaitTime = 20 * time.Second
)

// Client implements messaging.Client over Redis.
//
// Per bin it keeps a ready list, a delayed sorted set scored by ready-at
// time, an in-flight sorted set scored by lease deadline, and a lease hash
// mapping receipts to message ids.
type Client struct {
	rdb        redis.UniversalClient
	serializer serialization.Serializer
	logger     *slog.Logger

	defaultTimeout time.Duration
	binTimeouts    map[string]time.Duration
	pollInterval   time.Duration
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithVisibilityTimeout sets the default lease duration for all bins.
func WithVisibilityTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.defaultTimeout = timeout
		}
	}
}

// WithBinVisibilityTimeout overrides the lease duration for one bin.
func WithBinVisibilityTimeout(bin contracts.MessageBin, timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.binTimeouts[bin.Name()] = timeout
		}
	}
}

// WithPollInterval sets how often an idle receive re-checks the bin.
func WithPollInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient creates a Client over an existing Redis connection.
func NewClient(rdb redis.UniversalClient, serializer serialization.Serializer, options ...ClientOption) *Client {
	c := &Client{
		rdb:            rdb,
		serializer:     serializer,
		logger:         slog.Default(),
		defaultTimeout: defaultVisibilityTimeout,
		binTimeouts:    make(map[string]time.Duration),
		pollInterval:   defaultPollInterval,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

func readyKey(bin contracts.MessageBin) string {
	return fmt.Sprintf("queuebacca:%s:ready", bin.Name())
}

func delayedKey(bin contracts.MessageBin) string {
	return fmt.Sprintf("queuebacca:%s:delayed", bin.Name())
}

func inflightKey(bin contracts.MessageBin) string {
	return fmt.Sprintf("queuebacca:%s:inflight", bin.Name())
}

func leasesKey(bin contracts.MessageBin) string {
	return fmt.Sprintf("queuebacca:%s:leases", bin.Name())
}

func messageKey(bin contracts.MessageBin, messageID string) string {
	return fmt.Sprintf("queuebacca:%s:msg:%s", bin.Name(), messageID)
}

// SendMessage implements messaging.Client.
func (c *Client) SendMessage(ctx context.Context, bin contracts.MessageBin, message interface{}, delay time.Duration) (*contracts.OutgoingEnvelope, error) {
	body, err := c.serializer.ToString(message)
	if err != nil {
		return nil, err
	}

	messageID := uuid.NewString()
	if err := c.rdb.HSet(ctx, messageKey(bin, messageID), "body", body, "readCount", 0).Err(); err != nil {
		return nil, contracts.NewBrokerError("send", err)
	}

	if delay > 0 {
		err = c.rdb.ZAdd(ctx, delayedKey(bin), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: messageID,
		}).Err()
	} else {
		err = c.rdb.RPush(ctx, readyKey(bin), messageID).Err()
	}
	if err != nil {
		return nil, contracts.NewBrokerError("send", err)
	}

	c.logger.Info("sent message", "bin", bin.Name(), "messageId", messageID)

	return &contracts.OutgoingEnvelope{
		MessageID:  messageID,
		Message:    message,
		RawMessage: body,
	}, nil
}

// SendMessages implements messaging.Client.
func (c *Client) SendMessages(ctx context.Context, bin contracts.MessageBin, messages []interface{}, delay time.Duration) ([]*contracts.OutgoingEnvelope, error) {
	envelopes := make([]*contracts.OutgoingEnvelope, 0, len(messages))
	for _, message := range messages {
		env, err := c.SendMessage(ctx, bin, message, delay)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// RetrieveMessages implements messaging.Client. Polls the bin until a
// message is available or the long-poll ceiling elapses.
func (c *Client) RetrieveMessages(ctx context.Context, bin contracts.MessageBin, maxMessages int) ([]*contracts.IncomingEnvelope, error) {
	if maxMessages < 1 {
		maxMessages = 1
	}
	deadline := time.Now().Add(receiveWaitTime)

	for {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrCancelled, ctx.Err())
		}

		if err := c.promote(ctx, bin); err != nil {
			return nil, err
		}

		envelopes, err := c.pop(ctx, bin, maxMessages)
		if err != nil {
			return nil, err
		}
		if len(envelopes) > 0 || time.Now().After(deadline) {
			return envelopes, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", contracts.ErrCancelled, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// ReturnMessage implements messaging.Client.
func (c *Client) ReturnMessage(ctx context.Context, bin contracts.MessageBin, env *contracts.IncomingEnvelope, delay time.Duration) error {
	if err := c.releaseLease(ctx, bin, env.Receipt); err != nil {
		return err
	}

	var err error
	if delay > 0 {
		err = c.rdb.ZAdd(ctx, delayedKey(bin), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: env.MessageID,
		}).Err()
	} else {
		err = c.rdb.RPush(ctx, readyKey(bin), env.MessageID).Err()
	}
	if err != nil {
		return contracts.NewBrokerError("return", err)
	}
	return nil
}

// DisposeMessage implements messaging.Client.
func (c *Client) DisposeMessage(ctx context.Context, bin contracts.MessageBin, env *contracts.IncomingEnvelope) error {
	if err := c.releaseLease(ctx, bin, env.Receipt); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, messageKey(bin, env.MessageID)).Err(); err != nil {
		return contracts.NewBrokerError("dispose", err)
	}
	return nil
}

// ExtendVisibility implements messaging.Client by pushing out the lease
// deadline. An unknown receipt is a no-op: the lease already expired or was
// released.
func (c *Client) ExtendVisibility(ctx context.Context, bin contracts.MessageBin, receipt string, timeout time.Duration) error {
	err := c.rdb.ZAddXX(ctx, inflightKey(bin), redis.Z{
		Score:  float64(time.Now().Add(timeout).UnixMilli()),
		Member: receipt,
	}).Err()
	if err != nil {
		return contracts.NewBrokerError("extend", err)
	}
	return nil
}

// VisibilityTimeout implements messaging.Client.
func (c *Client) VisibilityTimeout(bin contracts.MessageBin) time.Duration {
	if timeout, ok := c.binTimeouts[bin.Name()]; ok {
		return timeout
	}
	return c.defaultTimeout
}

// promote moves due delayed messages and expired leases back to the ready
// list. Expired leases are how at-least-once redelivery happens.
func (c *Client) promote(ctx context.Context, bin contracts.MessageBin) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	due, err := c.rdb.ZRangeByScore(ctx, delayedKey(bin), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return contracts.NewBrokerError("receive", err)
	}
	for _, messageID := range due {
		if err := c.rdb.ZRem(ctx, delayedKey(bin), messageID).Err(); err != nil {
			return contracts.NewBrokerError("receive", err)
		}
		if err := c.rdb.RPush(ctx, readyKey(bin), messageID).Err(); err != nil {
			return contracts.NewBrokerError("receive", err)
		}
	}

	expired, err := c.rdb.ZRangeByScore(ctx, inflightKey(bin), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return contracts.NewBrokerError("receive", err)
	}
	for _, receipt := range expired {
		messageID, err := c.rdb.HGet(ctx, leasesKey(bin), receipt).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return contracts.NewBrokerError("receive", err)
		}
		if err := c.releaseLease(ctx, bin, receipt); err != nil {
			return err
		}
		if messageID != "" {
			c.logger.Warn("lease expired, requeueing message", "bin", bin.Name(), "messageId", messageID)
			if err := c.rdb.RPush(ctx, readyKey(bin), messageID).Err(); err != nil {
				return contracts.NewBrokerError("receive", err)
			}
		}
	}

	return nil
}

func (c *Client) pop(ctx context.Context, bin contracts.MessageBin, maxMessages int) ([]*contracts.IncomingEnvelope, error) {
	visibilityTimeout := c.VisibilityTimeout(bin)

	var envelopes []*contracts.IncomingEnvelope
	for len(envelopes) < maxMessages {
		messageID, err := c.rdb.LPop(ctx, readyKey(bin)).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return nil, contracts.NewBrokerError("receive", err)
		}

		env, err := c.lease(ctx, bin, messageID, visibilityTimeout)
		if err != nil {
			return nil, err
		}
		c.logger.Info("received message", "bin", bin.Name(), "messageId", messageID, "readCount", env.ReadCount)
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

func (c *Client) lease(ctx context.Context, bin contracts.MessageBin, messageID string, visibilityTimeout time.Duration) (*contracts.IncomingEnvelope, error) {
	msgKey := messageKey(bin, messageID)
	now := time.Now()

	readCount, err := c.rdb.HIncrBy(ctx, msgKey, "readCount", 1).Result()
	if err != nil {
		return nil, contracts.NewBrokerError("receive", err)
	}
	if err := c.rdb.HSetNX(ctx, msgKey, "firstReceived", now.UnixMilli()).Err(); err != nil {
		return nil, contracts.NewBrokerError("receive", err)
	}

	fields, err := c.rdb.HMGet(ctx, msgKey, "body", "firstReceived").Result()
	if err != nil {
		return nil, contracts.NewBrokerError("receive", err)
	}
	body, _ := fields[0].(string)
	firstReceivedMillis, err := strconv.ParseInt(fmt.Sprint(fields[1]), 10, 64)
	if err != nil {
		firstReceivedMillis = now.UnixMilli()
	}

	receipt := uuid.NewString()
	if err := c.rdb.ZAdd(ctx, inflightKey(bin), redis.Z{
		Score:  float64(now.Add(visibilityTimeout).UnixMilli()),
		Member: receipt,
	}).Err(); err != nil {
		return nil, contracts.NewBrokerError("receive", err)
	}
	if err := c.rdb.HSet(ctx, leasesKey(bin), receipt, messageID).Err(); err != nil {
		return nil, contracts.NewBrokerError("receive", err)
	}

	return &contracts.IncomingEnvelope{
		MessageID:     messageID,
		Receipt:       receipt,
		ReadCount:     int(readCount),
		FirstReceived: time.UnixMilli(firstReceivedMillis),
		RawMessage:    body,
	}, nil
}

func (c *Client) releaseLease(ctx context.Context, bin contracts.MessageBin, receipt string) error {
	if err := c.rdb.HDel(ctx, leasesKey(bin), receipt).Err(); err != nil {
		return contracts.NewBrokerError("release", err)
	}
	if err := c.rdb.ZRem(ctx, inflightKey(bin), receipt).Err(); err != nil {
		return contracts.NewBrokerError("release", err)
	}
	return nil
}
