package kafka

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/routine"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

type defaultConsumer struct {
	instances []*consumeInstance
	closed    atomic.Bool
}

// NewConsumer creates InstanceNum consumers in the same group
func NewConsumer(log logger.Logger, config *ConsumerConfig) (Consumer, error) {
	if config == nil {
		config = DefaultConsumerConfig()
	} else {
		config.MergeDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log = log.Named("kafka.consumer")
	if err := validateKafkaCluster(log, config.Brokers); err != nil {
		return nil, err
	}

	instances := make([]*consumeInstance, 0, config.InstanceNum)
	for i := 0; i < config.InstanceNum; i++ {
		name := fmt.Sprintf("%s-instance-%d", config.GroupID, i+1)
		instance, err := newConsumeInstance(name, config, log)
		if err != nil {
			for _, created := range instances {
				_ = created.Close()
			}
			return nil, err
		}
		instances = append(instances, instance)
	}
	return &defaultConsumer{instances: instances}, nil
}

// Start starts one consume loop per instance
func (c *defaultConsumer) Start(ctx context.Context, handler ConsumerMsgHandler) error {
	if len(c.instances) == 0 {
		return ErrNoConsumerInstances
	}
	for _, instance := range c.instances {
		instance.Start(ctx, handler)
	}
	return nil
}

// Close closes every instance
func (c *defaultConsumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var result error
	for _, instance := range c.instances {
		if err := instance.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// consumeInstance is a single member of the consumer group
type consumeInstance struct {
	logger logger.Logger
	config *ConsumerConfig
	name   string
	c      *kafka.Consumer

	runner routine.Runner
	closed atomic.Bool
}

func newConsumeInstance(name string, config *ConsumerConfig, log logger.Logger) (*consumeInstance, error) {
	consumer, err := kafka.NewConsumer(config.BuildConfigMap())
	if err != nil {
		return nil, ErrConnection(err)
	}
	if err := consumer.SubscribeTopics(config.Topics, nil); err != nil {
		consumer.Close()
		return nil, ErrSubscribe(config.Topics, err)
	}
	return &consumeInstance{
		config: config,
		name:   name,
		c:      consumer,
		logger: log.With(zap.String("instance_name", name)),
	}, nil
}

func (c *consumeInstance) Start(ctx context.Context, handler ConsumerMsgHandler) {
	c.runner = routine.New(ctx, c.logger)
	c.runner.Go(c.name, func(ctx context.Context) {
		if err := c.consumeLoop(ctx, handler); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka consumer loop exited with error", zap.Error(err))
		}
	})
	c.logger.Info("kafka consumer instance started", zap.Strings("topics", c.config.Topics))
}

// Close stops the loop and leaves the group
func (c *consumeInstance) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.runner != nil {
		c.runner.Stop()
	}
	if err := c.c.Close(); err != nil {
		return err
	}
	c.logger.Info("kafka consumer instance closed")
	return nil
}

func (c *consumeInstance) consumeLoop(ctx context.Context, handler ConsumerMsgHandler) error {
	pollMs := int(c.config.PollTimeout.Milliseconds())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev := c.c.Poll(pollMs)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if err := c.handleMessage(ctx, e, handler); err != nil {
				// a message that keeps failing is skipped, not retried forever
				c.logger.Error("kafka consumer handle message failed",
					zap.String("topic", *e.TopicPartition.Topic),
					zap.Int32("partition", e.TopicPartition.Partition),
					zap.Int64("offset", int64(e.TopicPartition.Offset)),
					zap.Error(err),
				)
			}
		case kafka.Error:
			c.logger.Error("kafka consumer error", zap.Int("code", int(e.Code())), zap.String("error", e.String()))
			if e.Code() == kafka.ErrAllBrokersDown {
				return ErrConsume(e)
			}
		case kafka.OffsetsCommitted:
			if e.Error != nil {
				c.logger.Error("failed to commit offsets", zap.Error(e.Error))
			}
		default:
			c.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", e)))
		}
	}
}

func (c *consumeInstance) handleMessage(ctx context.Context, km *kafka.Message, handler ConsumerMsgHandler) error {
	start := time.Now()
	msg := fromKafkaMessage(km)

	var err error
	for i := 0; i < c.config.MaxRetries; i++ {
		if err = handler(ctx, msg); err == nil || ctx.Err() != nil {
			break
		}
	}

	// commit even a failed message so it does not block the partition
	if !c.config.EnableAutoCommit {
		if _, cerr := c.c.CommitMessage(km); cerr != nil {
			return multierror.Append(err, ErrCommit(cerr))
		}
	}
	if err != nil {
		return err
	}

	c.logger.Debug("kafka consumer instance processed message",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
