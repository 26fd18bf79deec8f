package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Gopher0727/chatsync/config"
	"github.com/Gopher0727/chatsync/internal/relay"
	"github.com/Gopher0727/chatsync/pkg/events"
	"github.com/Gopher0727/chatsync/pkg/model"
)

func TestNewProducer_NoBrokers(t *testing.T) {
	p, err := NewProducer(&config.KafkaConfig{})
	assert.ErrorIs(t, err, errNoBrokers)
	assert.Nil(t, p)
}

func TestRelayConfig(t *testing.T) {
	cfg := RelayConfig()
	assert.True(t, cfg.Producer.Return.Successes)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.NoError(t, cfg.Validate())
}

func TestProducer_PublishKeyedBySubject(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewProducerFrom(mock, "relay")

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "relay" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "c1" {
			return fmt.Errorf("unexpected key %q", key)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var env relay.Envelope
		if err := json.Unmarshal(value, &env); err != nil {
			return err
		}
		if env.Kind != events.KindMessageDelete {
			return fmt.Errorf("unexpected kind %q", env.Kind)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != KindHeader ||
			string(msg.Headers[0].Value) != string(events.KindMessageDelete) {
			return fmt.Errorf("unexpected headers %v", msg.Headers)
		}
		return nil
	})

	err := p.Publish(context.Background(), events.MessageDelete{Message: &model.Message{ID: "m1", ChannelID: "c1"}})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducer_PublishWithoutSubject(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewProducerFrom(mock, "")
	assert.Equal(t, DefaultTopic, p.Topic())

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Key != nil {
			return errors.New("ready notifications carry no key")
		}
		return nil
	})

	require.NoError(t, p.Publish(context.Background(), events.Ready{}))
	require.NoError(t, p.Close())
}

func TestProducer_PublishFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewProducerFrom(mock, "relay")

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := p.Publish(context.Background(), events.Logout{})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducer_CanceledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewProducerFrom(mock, "relay")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, events.Ready{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}

func TestProperty_ProducerKeysByServer(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		serverID := rapid.StringMatching(`[0-9A-Z]{1,26}`).Draw(rt, "serverID")

		mock := mocks.NewSyncProducer(t, nil)
		p := NewProducerFrom(mock, "relay")
		mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			key, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			if string(key) != serverID {
				return fmt.Errorf("key %q, want %q", key, serverID)
			}
			return nil
		})

		err := p.Publish(context.Background(), events.ServerDelete{Server: &model.Server{ID: serverID}})
		if err != nil {
			rt.Fatalf("publish: %v", err)
		}
		if err := p.Close(); err != nil {
			rt.Fatalf("close: %v", err)
		}
	})
}
