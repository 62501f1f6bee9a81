package sqs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/queuebacca/queuebacca-go/contracts"
	"github.com/queuebacca/queuebacca-go/serialization"
)

// maxBatchSize is the SQS batch-entry limit.
const maxBatchSize = 10

// batchSender accumulates serialized entries and ships them in chunks of
// ten, reporting per-entry failures.
type batchSender struct {
	api        API
	serializer serialization.Serializer
	logger     *slog.Logger
	entries    []batchEntry
}

type batchEntry struct {
	id      string
	message interface{}
	body    string
}

func newBatchSender(api API, serializer serialization.Serializer, logger *slog.Logger) *batchSender {
	return &batchSender{
		api:        api,
		serializer: serializer,
		logger:     logger,
	}
}

func (s *batchSender) add(message interface{}) error {
	body, err := s.serializer.ToString(message)
	if err != nil {
		return err
	}
	if len(body) > maxMessageBytes {
		return contracts.NewConfigurationError("message exceeds max size of %dB (%dB)", maxMessageBytes, len(body))
	}

	s.entries = append(s.entries, batchEntry{
		id:      uuid.NewString(),
		message: message,
		body:    body,
	})
	return nil
}

func (s *batchSender) send(ctx context.Context, queueURL string, delay time.Duration) ([]*contracts.OutgoingEnvelope, error) {
	byID := lo.KeyBy(s.entries, func(e batchEntry) string { return e.id })

	var envelopes []*contracts.OutgoingEnvelope
	for _, chunk := range lo.Chunk(s.entries, maxBatchSize) {
		requestEntries := make([]types.SendMessageBatchRequestEntry, 0, len(chunk))
		for _, entry := range chunk {
			requestEntries = append(requestEntries, types.SendMessageBatchRequestEntry{
				Id:           aws.String(entry.id),
				MessageBody:  aws.String(entry.body),
				DelaySeconds: int32(delay / time.Second),
			})
		}

		out, err := s.api.SendMessageBatch(ctx, &awssqs.SendMessageBatchInput{
			QueueUrl: aws.String(queueURL),
			Entries:  requestEntries,
		})
		if err != nil {
			return nil, contracts.NewBrokerError("send", err)
		}

		for _, failed := range out.Failed {
			s.logger.Error("batch entry failed",
				"entryId", aws.ToString(failed.Id),
				"code", aws.ToString(failed.Code),
				"message", aws.ToString(failed.Message),
			)
		}
		if len(out.Failed) > 0 {
			return nil, contracts.NewBrokerError("send",
				fmt.Errorf("%d of %d batch entries failed", len(out.Failed), len(requestEntries)))
		}

		for _, ok := range out.Successful {
			entry := byID[aws.ToString(ok.Id)]
			messageID := aws.ToString(ok.MessageId)
			s.logger.Info("sent SQS message", "messageId", messageID)
			envelopes = append(envelopes, &contracts.OutgoingEnvelope{
				MessageID:  messageID,
				Message:    entry.message,
				RawMessage: entry.body,
			})
		}
	}

	return envelopes, nil
}
