// Package kafkaconsumer applies element geometry change events from a Kafka
// topic to a geometry store.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/osm-geometry-store/internal/core/observability"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
	"github.com/mohammed-shakir/osm-geometry-store/internal/ingest"
	mylog "github.com/mohammed-shakir/osm-geometry-store/internal/logger"
)

// Writer is the part of geometrystore.Store the consumer drives.
type Writer interface {
	Put(ctx context.Context, key geometry.ElementKey, g geometry.Geometry) error
	Delete(ctx context.Context, key geometry.ElementKey) (bool, error)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	store  Writer
	dedupe *seqDedupe
	zlog   *zerolog.Logger
}

// New builds a consumer. zl may be nil, in which case structured per-message
// logs are discarded.
func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, store Writer) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		store:  store,
		dedupe: newSeqDedupe(cfg.DedupeSize),
		zlog:   mylog.FromContext(base, zl),
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil {
		return errors.New("kafkaconsumer: missing geometry store")
	}
	if len(c.cfg.Brokers) == 0 || c.cfg.Topic == "" || c.cfg.GroupID == "" {
		return errors.New("kafkaconsumer: brokers, topic and group id are required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne, logger: c.logger}

	c.logger.Info("geometry ingest consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("geometry ingest consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					continue
				}
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies one message. Malformed events are logged and skipped so
// they cannot wedge the partition; store failures are returned for redelivery.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev ingest.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.skip(ctx, msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		c.skip(ctx, msg, "invalid", err)
		return nil
	}
	key, _ := ev.Key()
	ctx = mylog.WithElement(ctx, key.String())

	if ev.Seq > 0 && c.dedupe.stale(key.String(), ev.Seq) {
		obs.IncIngestSkipped("duplicate")
		c.logger.DebugContext(ctx, "stale event skipped", "element", key.String(), "seq", ev.Seq)
		return nil
	}

	var err error
	switch ev.Op {
	case ingest.OpPut:
		var g geometry.Geometry
		if g, err = ev.Shape(); err != nil {
			c.skip(ctx, msg, "geometry", err)
			return nil
		}
		err = c.store.Put(ctx, key, g)
	case ingest.OpDelete:
		_, err = c.store.Delete(ctx, key)
	}
	obs.ObserveIngest(ev.Op, err, time.Since(start).Seconds())
	if err != nil {
		mylog.FromContext(ctx, c.zlog).Error().Err(err).
			Str("op", ev.Op).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("apply geometry event")
		return fmt.Errorf("apply %s %s: %w", ev.Op, key, err)
	}

	if ev.Seq > 0 {
		c.dedupe.applied(key.String(), ev.Seq)
	}
	mylog.FromContext(ctx, c.zlog).Debug().
		Str("op", ev.Op).
		Uint64("seq", ev.Seq).
		Msg("geometry event applied")
	return nil
}

func (c *Consumer) skip(ctx context.Context, msg *sarama.ConsumerMessage, kind string, err error) {
	obs.IncIngestSkipped(kind)
	mylog.FromContext(ctx, c.zlog).Warn().Err(err).
		Str("kind", kind).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("skipping geometry event")
}
