// Package kafka publishes records to a Kafka topic, encoded as a
// google.protobuf.Struct and keyed by correlation id.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/pipeline"
	"github.com/afikmenashe/logpipe/internal/ratelimit"
	"github.com/afikmenashe/logpipe/internal/record"
	kafkautil "github.com/afikmenashe/logpipe/pkg/kafka"
)

const (
	Name    = "kafka"
	RateKey = "kafka_log_timestamps"

	// ContentType is set as a message header.
	ContentType = "application/x-protobuf; messageType=google.protobuf.Struct"
)

// MessageWriter is the subset of *kafka.Writer the sender needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender produces one message per record.
type Sender struct {
	writer MessageWriter
	topic  string
}

// NewSender wraps an existing writer.
func NewSender(w MessageWriter, topic string) *Sender {
	return &Sender{writer: w, topic: topic}
}

// Dial creates a sender with a writer for brokers (comma-separated).
func Dial(brokers, topic string) (*Sender, error) {
	w, err := kafkautil.NewWriter(brokers, topic)
	if err != nil {
		return nil, err
	}
	return NewSender(w, topic), nil
}

func (s *Sender) Send(ctx context.Context, r *record.Record, info channel.Info) (int, error) {
	msg, err := BuildMessage(r, info)
	if err != nil {
		return 0, err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return 0, fmt.Errorf("failed to write message to Kafka topic %s: %w", s.topic, err)
	}
	return 0, nil
}

func (s *Sender) Close() error {
	return s.writer.Close()
}

// NewChannel wires a Kafka channel. maxPerMinute <= 0 means unlimited.
func NewChannel(sender *Sender, store cache.Cache, maxPerMinute int, opts ...channel.Option) *channel.Channel {
	if maxPerMinute > 0 {
		opts = append([]channel.Option{channel.WithRateWindow(ratelimit.New(store, RateKey, maxPerMinute))}, opts...)
	}
	return channel.New(Name, sender, opts...)
}

// BuildMessage encodes r. The message key is the correlation id so every
// record of one failure lands on the same partition.
func BuildMessage(r *record.Record, info channel.Info) (kafka.Message, error) {
	doc := map[string]any{
		"uid":     r.UID(),
		"level":   r.Level.String(),
		"channel": r.Channel,
		"message": r.Message,
		"time":    r.Time.UTC().Format(time.RFC3339Nano),
		"context": r.Context,
		"extra":   r.Extra(),
		"request": map[string]any{
			"remote_addr": info.Request.RemoteAddr,
			"server_name": info.Request.ServerName,
		},
	}
	if info.LoggedIn {
		doc["user"] = map[string]any{
			"id":    info.User.UserID,
			"login": info.User.Login,
			"name":  info.User.DisplayName,
			"email": info.User.Email,
		}
	}

	st, err := toStruct(doc)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode record: %w", err)
	}
	value, err := proto.Marshal(st)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal record: %w", err)
	}

	eventID := ""
	if v, ok := r.ExtraValue(pipeline.ExtraEventID); ok {
		eventID = fmt.Sprint(v)
	}
	return kafka.Message{
		Key:   []byte(r.UID()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content_type", Value: []byte(ContentType)},
			{Key: "level", Value: []byte(r.Level.String())},
			{Key: "event_id", Value: []byte(eventID)},
		},
		Time: r.Time,
	}, nil
}

// DecodeMessage is the inverse of BuildMessage's value encoding.
func DecodeMessage(value []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(value, &st); err != nil {
		return nil, err
	}
	return st.AsMap(), nil
}

// toStruct normalizes arbitrary context values through JSON so structpb
// only sees the types it supports.
func toStruct(doc map[string]any) (*structpb.Struct, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var normalized map[string]any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}
	return structpb.NewStruct(normalized)
}
