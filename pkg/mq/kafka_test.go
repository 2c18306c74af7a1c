package mq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
)

type recordedFanout struct {
	userIDs []uint
	event   string
	payload any
}

type fakeFanout struct {
	calls []recordedFanout
}

func (f *fakeFanout) NotifyUsers(userIDs []uint, event string, payload any) {
	f.calls = append(f.calls, recordedFanout{userIDs, event, payload})
}

func newMockProducer(t *testing.T) *mocks.SyncProducer {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	return mocks.NewSyncProducer(t, cfg)
}

func TestPublish_KeyAndValue(t *testing.T) {
	mock := newMockProducer(t)
	var got *sarama.ProducerMessage
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		got = msg
		return nil
	})

	p := NewKafkaProducerWith(mock, "chat.notifications")
	require.NoError(t, p.Publish(Notification{UserIDs: []uint{7, 8}, Event: "status_uploaded", Payload: json.RawMessage(`{"id":1}`)}))
	require.NoError(t, p.Close())

	require.NotNil(t, got)
	assert.Equal(t, "chat.notifications", got.Topic)
	key, err := got.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "7", string(key))

	value, err := got.Value.Encode()
	require.NoError(t, err)
	var n Notification
	require.NoError(t, json.Unmarshal(value, &n))
	assert.Equal(t, []uint{7, 8}, n.UserIDs)
	assert.Equal(t, "status_uploaded", n.Event)
	assert.JSONEq(t, `{"id":1}`, string(n.Payload))
}

func TestNotifier_PublishesWithoutFallback(t *testing.T) {
	mock := newMockProducer(t)
	mock.ExpectSendMessageAndSucceed()
	fallback := &fakeFanout{}

	n := NewNotifier(NewKafkaProducerWith(mock, "t"), fallback, logger.NewNop())
	n.NotifyUsers([]uint{1}, "group_created", map[string]any{"groupId": 3})

	assert.Empty(t, fallback.calls)
	require.NoError(t, mock.Close())
}

func TestNotifier_FallsBackOnPublishError(t *testing.T) {
	mock := newMockProducer(t)
	mock.ExpectSendMessageAndFail(errors.New("broker down"))
	fallback := &fakeFanout{}

	n := NewNotifier(NewKafkaProducerWith(mock, "t"), fallback, logger.NewNop())
	n.NotifyUsers([]uint{1, 2}, "friend_removed", map[string]any{"userId": 2})

	require.Len(t, fallback.calls, 1)
	call := fallback.calls[0]
	assert.Equal(t, []uint{1, 2}, call.userIDs)
	assert.Equal(t, "friend_removed", call.event)
	raw, ok := call.payload.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"userId":2}`, string(raw))
	require.NoError(t, mock.Close())
}

func TestNotifier_SkipsEmptyAudience(t *testing.T) {
	mock := newMockProducer(t)
	fallback := &fakeFanout{}

	n := NewNotifier(NewKafkaProducerWith(mock, "t"), fallback, logger.NewNop())
	n.NotifyUsers(nil, "status_deleted", nil)

	assert.Empty(t, fallback.calls)
	require.NoError(t, mock.Close())
}

func TestNotifier_FallbackPayloadStaysJSON(t *testing.T) {
	mock := newMockProducer(t)
	mock.ExpectSendMessageAndFail(errors.New("broker down"))
	fallback := &fakeFanout{}

	n := NewNotifier(NewKafkaProducerWith(mock, "t"), fallback, logger.NewNop())
	n.NotifyUsers([]uint{3}, "status_deleted", map[string]any{"status_id": 5})

	// the hub marshals the payload into the frame, which must not turn it into base64
	require.Len(t, fallback.calls, 1)
	frame, err := json.Marshal(map[string]any{"event": "status_deleted", "data": fallback.calls[0].payload})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"status_deleted","data":{"status_id":5}}`, string(frame))
	require.NoError(t, mock.Close())
}

func TestProducerConfig_NoRetries(t *testing.T) {
	cfg := producerConfig()
	assert.Equal(t, 0, cfg.Producer.Retry.Max)
	assert.Equal(t, 0, cfg.Metadata.Retry.Max)
	assert.LessOrEqual(t, cfg.Net.DialTimeout, time.Second)
	assert.LessOrEqual(t, cfg.Net.WriteTimeout, time.Second)
	assert.True(t, cfg.Producer.Return.Successes)
	require.NoError(t, cfg.Validate())
}
