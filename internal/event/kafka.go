package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tshetendev/Startup-Investment/internal/config"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// Publisher 事件对外发布
type Publisher interface {
	Publish(ctx context.Context, ev *model.EventModel) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 将事件写入Kafka，按活动ID分区以保持同一活动的事件顺序
type KafkaPublisher struct {
	writer messageWriter
}

// envelope 对外消息格式
type envelope struct {
	Id         int64           `json:"id"`
	EventType  model.EventType `json:"event_type"`
	CampaignId string          `json:"campaign_id"`
	TxHash     string          `json:"tx_hash,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewKafkaPublisher 创建Kafka发布器
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}), nil
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish 发布单个事件
func (p *KafkaPublisher) Publish(ctx context.Context, ev *model.EventModel) error {
	payload := json.RawMessage(ev.Data)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	value, err := json.Marshal(envelope{
		Id:         ev.Id,
		EventType:  ev.EventType,
		CampaignId: ev.CampaignId,
		TxHash:     ev.TxHash,
		CreatedAt:  ev.CreatedAt,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("encode event %d: %w", ev.Id, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.CampaignId),
		Value: value,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event %d to kafka: %w", ev.Id, err)
	}
	return nil
}

// Close 关闭写入器
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
