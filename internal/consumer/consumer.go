package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/mq"
)

// NotificationConsumer delivers records from the notification topic to the
// sessions connected to this node.
type NotificationConsumer struct {
	hub mq.Fanout
	log *logger.Logger
}

func NewNotificationConsumer(hub mq.Fanout, log *logger.Logger) *NotificationConsumer {
	return &NotificationConsumer{hub: hub, log: log}
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (c *NotificationConsumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (c *NotificationConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
// Undecodable records are logged and marked so they are not redelivered.
func (c *NotificationConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.handle(message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *NotificationConsumer) handle(message *sarama.ConsumerMessage) {
	var n mq.Notification
	if err := json.Unmarshal(message.Value, &n); err != nil {
		c.log.Warn("反序列化通知失败",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return
	}
	if n.Event == "" {
		c.log.Warn("notification without event", zap.Int64("offset", message.Offset))
		return
	}

	var payload any
	if len(n.Payload) > 0 {
		payload = n.Payload
	}
	c.hub.NotifyUsers(n.UserIDs, n.Event, payload)
}

const retryDelay = time.Second

// Group runs a consumer group until Stop is called.
type Group struct {
	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartConsumer joins groupID on topic and feeds every record to handler.
func StartConsumer(ctx context.Context, brokers []string, groupID, topic string, handler sarama.ConsumerGroupHandler, log *logger.Logger) (*Group, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("创建消费者组客户端失败: %w", err)
	}
	return run(ctx, client, topic, handler, log), nil
}

func run(ctx context.Context, client sarama.ConsumerGroup, topic string, handler sarama.ConsumerGroupHandler, log *logger.Logger) *Group {
	ctx, cancel := context.WithCancel(ctx)
	g := &Group{group: client, cancel: cancel}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for {
			if err := client.Consume(ctx, []string{topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				log.Warn("消费者错误", zap.Error(err))
				select {
				case <-ctx.Done():
				case <-time.After(retryDelay):
				}
			}
			// check if context was cancelled, signaling that the consumer should stop
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return g
}

// Stop leaves the group and waits for the consume loop to exit.
func (g *Group) Stop() error {
	g.cancel()
	err := g.group.Close()
	g.wg.Wait()
	return err
}
