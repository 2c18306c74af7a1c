package mq

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
)

// Notification is the record written to the notification topic: one event
// for a list of users.
type Notification struct {
	UserIDs []uint          `json:"user_ids"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Fanout delivers an event to live sessions.
type Fanout interface {
	NotifyUsers(userIDs []uint, event string, payload any)
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// producerConfig sends from inside request handlers, so a failed send is
// reported at once and the caller delivers locally.
func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 0
	config.Producer.Timeout = time.Second
	config.Net.DialTimeout = time.Second
	config.Net.ReadTimeout = 2 * time.Second
	config.Net.WriteTimeout = time.Second
	config.Metadata.Retry.Max = 0
	return config
}

func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("启动 Sarama 生产者失败: %w", err)
	}
	return NewKafkaProducerWith(producer, topic), nil
}

// NewKafkaProducerWith wraps an existing producer.
func NewKafkaProducerWith(producer sarama.SyncProducer, topic string) *KafkaProducer {
	return &KafkaProducer{producer: producer, topic: topic}
}

// Publish writes n keyed by its first recipient, so the events of a user
// whose notifications start a batch stay on one partition.
func (k *KafkaProducer) Publish(n Notification) error {
	bytes, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Value: sarama.ByteEncoder(bytes),
	}
	if len(n.UserIDs) > 0 {
		msg.Key = sarama.StringEncoder(strconv.FormatUint(uint64(n.UserIDs[0]), 10))
	}

	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("发送消息到 kafka 失败: %w", err)
	}
	return nil
}

func (k *KafkaProducer) Close() error {
	return k.producer.Close()
}

// Notifier publishes notifications to Kafka. When publishing fails the event
// goes straight to the fallback so a broker outage only costs cross-node
// delivery.
type Notifier struct {
	producer *KafkaProducer
	fallback Fanout
	log      *logger.Logger
}

func NewNotifier(producer *KafkaProducer, fallback Fanout, log *logger.Logger) *Notifier {
	return &Notifier{producer: producer, fallback: fallback, log: log}
}

func (n *Notifier) NotifyUsers(userIDs []uint, event string, payload any) {
	if len(userIDs) == 0 {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("encode notification failed", zap.String("event", event), zap.Error(err))
		return
	}

	note := Notification{UserIDs: userIDs, Event: event, Payload: raw}
	if err := n.producer.Publish(note); err != nil {
		n.log.Warn("publish notification failed, delivering locally",
			zap.String("event", event),
			zap.Error(err),
		)
		if n.fallback != nil {
			n.fallback.NotifyUsers(userIDs, event, json.RawMessage(raw))
		}
	}
}
