package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	clientID           = "grocery-dlq-reprocess"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// dlqRecord — payload, который outbox worker кладёт в DLQ поверх OutboxEnvelope.
type dlqRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// replayDependencies — Kafka-клиенты одного запуска. publisher nil в dry-run.
type replayDependencies struct {
	client    offsetClient
	consumer  partitionConsumerSource
	publisher domain.OutboxPublisher
	closeFns  []func() error
}

func (d *replayDependencies) Close() {
	for i := len(d.closeFns) - 1; i >= 0; i-- {
		_ = d.closeFns[i]()
	}
}

var newReplayDependencies = func(cfg config) (*replayDependencies, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = clientID
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	deps := &replayDependencies{client: client, closeFns: []func() error{client.Close}}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}
	deps.consumer = consumer
	deps.closeFns = append(deps.closeFns, consumer.Close)

	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, clientID)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.publisher = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	deps.closeFns = append(deps.closeFns, producer.Close)
	return deps, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dlq-reprocess",
		Usage: "replay outbox events from the dead letter queue",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "brokers",
				Usage:   "Kafka brokers",
				EnvVars: []string{"GROCERY_KAFKA_BROKERS"},
			},
			&cli.StringFlag{Name: "source-topic", Value: kafka.TopicDeadLetterQueue, Usage: "DLQ source topic"},
			&cli.StringFlag{Name: "target-topic", Value: kafka.TopicOrderEvents, Usage: "topic for events without their own routing"},
			&cli.IntFlag{Name: "limit", Value: defaultReplayLimit, Usage: "max number of messages to scan"},
			&cli.BoolFlag{Name: "execute", Usage: "publish replayed events; default is dry-run"},
			&cli.BoolFlag{Name: "from-newest", Usage: "scan latest messages first (bounded by limit)"},
			&cli.DurationFlag{Name: "idle-timeout", Value: defaultIdleTimeout, Usage: "idle timeout per partition"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFromCLI(c)
			if err != nil {
				return err
			}
			return run(c.Context, cfg)
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if err := newApp().Run(os.Args); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func configFromCLI(c *cli.Context) (config, error) {
	cfg := config{
		brokers:     parseBrokers(c.StringSlice("brokers")),
		sourceTopic: strings.TrimSpace(c.String("source-topic")),
		targetTopic: strings.TrimSpace(c.String("target-topic")),
		limit:       c.Int("limit"),
		execute:     c.Bool("execute"),
		fromNewest:  c.Bool("from-newest"),
		idleTimeout: c.Duration("idle-timeout"),
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (--brokers or GROCERY_KAFKA_BROKERS)")
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.targetTopic == "":
		return config{}, errors.New("target-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

// parseBrokers принимает как повторяющиеся флаги, так и списки через запятую.
func parseBrokers(values []string) []string {
	brokers := make([]string, 0, len(values))
	for _, value := range values {
		for _, chunk := range strings.Split(value, ",") {
			if broker := strings.TrimSpace(chunk); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	deps, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	_, err = runReplay(ctx, cfg, deps)
	return err
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, deps *replayDependencies) (replayStats, error) {
	var total replayStats
	if deps == nil || deps.client == nil || deps.consumer == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && deps.publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	partitions, err := deps.client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := replayPartition(ctx, cfg, deps, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return total, nil
}

// replayPartition читает партицию от стартового offset до high watermark на момент запуска.
func replayPartition(ctx context.Context, cfg config, deps *replayDependencies, partition int32, limit int) (replayStats, error) {
	var stats replayStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := deps.consumer.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	errs := pc.Errors()
	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			resetTimer(idle, cfg.idleTimeout)

			stats.processed++
			if err := replayMessage(cfg, deps.publisher, msg); err != nil {
				if errors.Is(err, errNotReplayable) {
					stats.skipped++
					log.WithError(err).WithFields(log.Fields{
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Warn("skip dlq message")
					continue
				}
				return stats, err
			}
			stats.replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

var errNotReplayable = errors.New("dlq message is not replayable")

// replayMessage публикует событие заново либо только логирует кандидата в dry-run.
func replayMessage(cfg config, publisher domain.OutboxPublisher, msg *sarama.ConsumerMessage) error {
	event, publishErr, err := decodeDLQMessage(msg.Value)
	if err != nil {
		return err
	}

	fields := log.Fields{
		"partition":     msg.Partition,
		"offset":        msg.Offset,
		"outbox_id":     event.ID,
		"event_type":    event.EventType,
		"topic":         event.Topic,
		"publish_error": publishErr,
	}
	if !cfg.execute {
		log.WithFields(fields).Info("dlq replay candidate")
		return nil
	}
	if err := publisher.Publish(event); err != nil {
		return fmt.Errorf("publish replay of %s: %w", event.ID, err)
	}
	log.WithFields(fields).Info("dlq event replayed")
	return nil
}

// decodeDLQMessage восстанавливает исходное outbox-событие из DLQ-сообщения.
// Пустой Topic означает топик по умолчанию у publisher.
func decodeDLQMessage(value []byte) (domain.OutboxMessage, string, error) {
	var envelope kafka.OutboxEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return domain.OutboxMessage{}, "", fmt.Errorf("%w: decode envelope: %v", errNotReplayable, err)
	}
	if len(envelope.Payload) == 0 {
		return domain.OutboxMessage{}, "", fmt.Errorf("%w: empty envelope payload", errNotReplayable)
	}

	var record dlqRecord
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return domain.OutboxMessage{}, "", fmt.Errorf("%w: decode dlq record: %v", errNotReplayable, err)
	}
	if len(record.Payload) == 0 {
		return domain.OutboxMessage{}, "", fmt.Errorf("%w: dlq record has no original payload", errNotReplayable)
	}

	return domain.OutboxMessage{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, envelope.EventType),
		Topic:         strings.TrimSpace(record.Topic),
		Payload:       []byte(record.Payload),
	}, record.PublishError, nil
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
