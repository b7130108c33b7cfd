package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"go.uber.org/zap"
)

// ProbeRequest asks for one entity to be looked up, e.g.
// {"source":"arp","key":"10.0.0.7","reply_to":"netdisco.probe-replies"}
type ProbeRequest struct {
	ID      string `json:"id,omitempty"`
	Source  string `json:"source"`
	Key     string `json:"key"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// ProbeReply is produced to ReplyTo when the request names one
type ProbeReply struct {
	RequestID string `json:"request_id,omitempty"`
	discovery.ProbeResult
	Error string `json:"error,omitempty"`
}

// Prober is implemented by *discovery.Manager
type Prober interface {
	Probe(ctx context.Context, source, key string) (discovery.ProbeResult, error)
}

// ProbeRequestHandler turns probe request messages into Prober calls.
// Malformed requests and unknown sources are logged and acknowledged, since
// retrying them cannot succeed. Failed probes are returned for retry.
// replies may be nil when no request asks for a reply.
func ProbeRequestHandler(log logger.Logger, prober Prober, replies Producer) ConsumerMsgHandler {
	log = log.Named("kafka.probe")
	return func(ctx context.Context, msg *Message) error {
		req, err := decodeProbeRequest(msg.Value)
		if err != nil {
			log.Warn("dropping probe request", zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}

		res, err := prober.Probe(ctx, req.Source, req.Key)
		switch {
		case errors.Is(err, discovery.ErrUnknownSource):
			log.Warn("probe request for unknown source", zap.String("source", req.Source))
		case err != nil && !errors.Is(err, taskcache.ErrProbeCancelled) && !res.Found:
			return err
		}

		log.Debug("probe request served",
			zap.String("source", req.Source),
			zap.String("key", req.Key),
			zap.Bool("found", res.Found),
			zap.Bool("from_cache", res.FromCache),
		)
		if req.ReplyTo == "" || replies == nil {
			return nil
		}

		reply := ProbeReply{RequestID: req.ID, ProbeResult: res}
		if err != nil {
			reply.Error = err.Error()
		}
		value, merr := json.Marshal(reply)
		if merr != nil {
			return merr
		}
		return replies.Produce(ctx, &Message{
			Topic: req.ReplyTo,
			Key:   []byte(req.Source + "/" + req.Key),
			Value: value,
		})
	}
}

func decodeProbeRequest(data []byte) (ProbeRequest, error) {
	var req ProbeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Source == "" || req.Key == "" {
		return req, fmt.Errorf("%w: source and key are required", ErrInvalidRequest)
	}
	return req, nil
}
