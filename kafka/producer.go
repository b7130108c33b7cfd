package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/routine"
	"go.uber.org/zap"
)

type defaultProducer struct {
	logger logger.Logger
	config *ProducerConfig

	p *kafka.Producer

	failed atomic.Uint64
	closed atomic.Bool
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewProducer connects a producer after validating the cluster
func NewProducer(log logger.Logger, config *ProducerConfig) (Producer, error) {
	if config == nil {
		config = DefaultProducerConfig()
	} else {
		config.MergeDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log = log.Named("kafka.producer")
	if err := validateKafkaCluster(log, config.Brokers); err != nil {
		return nil, err
	}

	producer, err := retryCreate(log, "producer", func() (*kafka.Producer, error) {
		return kafka.NewProducer(config.BuildConfigMap())
	})
	if err != nil {
		return nil, ErrConnection(err)
	}

	kp := &defaultProducer{
		logger: log,
		config: config,
		p:      producer,
		done:   make(chan struct{}),
	}

	kp.wg.Add(1)
	routine.Go(log, "kafka-delivery-reports", func() {
		defer kp.wg.Done()
		kp.handleDeliveryReports()
	})

	log.Info("kafka producer initialized", zap.Strings("brokers", config.Brokers), zap.String("topic", config.Topic))
	return kp, nil
}

func (kp *defaultProducer) handleDeliveryReports() {
	for {
		select {
		case <-kp.done:
			return
		case e, ok := <-kp.p.Events():
			if !ok {
				return
			}
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					kp.failed.Add(1)
					kp.logger.Error("failed to deliver message",
						zap.Error(ev.TopicPartition.Error),
						zap.String("topic", *ev.TopicPartition.Topic),
					)
				}
			case kafka.Error:
				kp.logger.Error("kafka producer error",
					zap.Int("code", int(ev.Code())),
					zap.String("error", ev.String()),
				)
			default:
				kp.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
			}
		}
	}
}

// Produce enqueues msg. An empty topic uses the configured one.
func (kp *defaultProducer) Produce(ctx context.Context, msg *Message) error {
	if kp.closed.Load() {
		return ErrProducerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Value == nil {
		return ErrInvalidConfig("value is required")
	}
	if msg.Topic == "" {
		msg.Topic = kp.config.Topic
	}
	if err := kp.p.Produce(toKafkaMessage(msg), nil); err != nil {
		return ErrProduce(msg.Topic, err)
	}
	return nil
}

func (kp *defaultProducer) Errors() uint64 {
	return kp.failed.Load()
}

// Close flushes outstanding messages and closes the producer
func (kp *defaultProducer) Close() error {
	if !kp.closed.CompareAndSwap(false, true) {
		return nil
	}

	remaining := kp.p.Flush(int(kp.config.FlushTimeout.Milliseconds()))
	if remaining > 0 {
		kp.logger.Warn("producer closed with undelivered messages", zap.Int("remaining", remaining))
	}

	close(kp.done)
	kp.wg.Wait()
	kp.p.Close()
	return nil
}
