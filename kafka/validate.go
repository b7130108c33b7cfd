package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/netdisco/logger"
	"go.uber.org/zap"
)

const (
	validateAttempts = 3
	validateBackoff  = 2 * time.Second
	metadataTimeout  = 10 * time.Second
)

// validateKafkaCluster fetches cluster metadata so that a wrong broker list
// fails at startup instead of on the first event.
func validateKafkaCluster(log logger.Logger, brokers []string) error {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"request.timeout.ms": int(metadataTimeout.Milliseconds()),
	}

	adminClient, err := retryCreate(log, "admin client", func() (*kafka.AdminClient, error) {
		return kafka.NewAdminClient(configMap)
	})
	if err != nil {
		return ErrConnection(err)
	}
	defer adminClient.Close()

	md, err := adminClient.GetMetadata(nil, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return ErrConnection(err)
	}

	log.Info("kafka brokers connection validated",
		zap.Strings("brokers", brokers),
		zap.Int("cluster_brokers", len(md.Brokers)),
	)
	return nil
}

// retryCreate retries client construction, which fails on transient
// resolver errors.
func retryCreate[T any](log logger.Logger, what string, create func() (T, error)) (T, error) {
	var (
		client T
		err    error
	)
	for i := 0; i < validateAttempts; i++ {
		client, err = create()
		if err == nil {
			return client, nil
		}
		if i < validateAttempts-1 {
			log.Warn("failed to create kafka "+what+", retrying...",
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("max_retries", validateAttempts),
			)
			time.Sleep(validateBackoff)
		}
	}
	return client, fmt.Errorf("create kafka %s after %d attempts: %w", what, validateAttempts, err)
}
