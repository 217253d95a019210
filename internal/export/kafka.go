// Package export publishes every fetched snapshot to Kafka for downstream
// consumers. Export is best effort and never blocks the pipeline on failure.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

// DefaultTopic receives title observations.
const DefaultTopic = "trendradar.fetchdata"

// Writer is the subset of *kafka.Writer used by the exporter.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TitleEvent is the payload of one exported title observation.
type TitleEvent struct {
	PlatformID   string    `json:"platform_id"`
	PlatformName string    `json:"platform_name"`
	Title        string    `json:"title"`
	Ranks        []int     `json:"ranks"`
	Rank         int       `json:"rank"`
	URL          string    `json:"url"`
	MobileURL    string    `json:"mobile_url"`
	FetchTime    time.Time `json:"fetch_time"`
}

// FailedEvent lists the platforms that could not be fetched.
type FailedEvent struct {
	FailedPlatforms []string  `json:"failed_platforms"`
	FetchTime       time.Time `json:"fetch_time"`
}

// KafkaExporter writes snapshots to a topic and failures to "<topic>-failed".
type KafkaExporter struct {
	writer Writer
	topic  string
	log    logger.Logger
}

// NewKafkaWriter creates a writer for brokers. The topic is set per message.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaExporter creates an exporter writing to topic.
func NewKafkaExporter(w Writer, topic string, log logger.Logger) *KafkaExporter {
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &KafkaExporter{writer: w, topic: topic, log: log}
}

// FailedTopic returns the topic receiving failed platforms.
func (e *KafkaExporter) FailedTopic() string {
	return e.topic + "-failed"
}

// Export publishes one message per title observation of snap, keyed
// "<platform>_<seq>", plus a failed-platform message when any platform failed.
// Both writes are attempted; their errors are joined. It returns the number of
// title messages written.
func (e *KafkaExporter) Export(ctx context.Context, snap news.Snapshot) (int, error) {
	msgs, err := e.titleMessages(snap)
	if err != nil {
		return 0, err
	}

	written := 0
	var titleErr, failedErr error
	if len(msgs) > 0 {
		if err := e.writer.WriteMessages(ctx, msgs...); err != nil {
			titleErr = fmt.Errorf("write %d title messages to %s: %w", len(msgs), e.topic, err)
		} else {
			written = len(msgs)
		}
	}
	if len(snap.Failed) > 0 {
		failedErr = e.writeFailed(ctx, snap)
	}
	if err := errors.Join(titleErr, failedErr); err != nil {
		return written, err
	}

	e.log.Info("Snapshot exported",
		logger.String("topic", e.topic),
		logger.Int("messages", written),
		logger.Int("failed_platforms", len(snap.Failed)),
	)
	return written, nil
}

func (e *KafkaExporter) writeFailed(ctx context.Context, snap news.Snapshot) error {
	payload, err := json.Marshal(FailedEvent{FailedPlatforms: snap.Failed, FetchTime: snap.FetchedAt})
	if err != nil {
		return fmt.Errorf("marshal failed event: %w", err)
	}
	msg := kafka.Message{Topic: e.FailedTopic(), Key: []byte("failed"), Value: payload, Time: snap.FetchedAt}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write failed platforms to %s: %w", e.FailedTopic(), err)
	}
	return nil
}

func (e *KafkaExporter) titleMessages(snap news.Snapshot) ([]kafka.Message, error) {
	platforms := make([]string, 0, len(snap.Items))
	for p := range snap.Items {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	var msgs []kafka.Message
	for _, p := range platforms {
		name := snap.Platforms[p]
		if name == "" {
			name = p
		}
		for seq, obs := range snap.Titles(p) {
			payload, err := json.Marshal(TitleEvent{
				PlatformID:   p,
				PlatformName: name,
				Title:        obs.Title,
				Ranks:        obs.Ranks,
				Rank:         obs.BestRank(),
				URL:          obs.URL,
				MobileURL:    obs.MobileURL,
				FetchTime:    snap.FetchedAt,
			})
			if err != nil {
				return nil, fmt.Errorf("marshal title event: %w", err)
			}
			msgs = append(msgs, kafka.Message{
				Topic: e.topic,
				Key:   []byte(fmt.Sprintf("%s_%d", p, seq)),
				Value: payload,
				Time:  snap.FetchedAt,
			})
		}
	}
	return msgs, nil
}

// Close closes the underlying writer.
func (e *KafkaExporter) Close() error {
	return e.writer.Close()
}

// SplitBrokers parses a comma separated bootstrap server list.
func SplitBrokers(s string) ([]string, error) {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no kafka bootstrap servers")
	}
	return out, nil
}
