package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/types"
	"github.com/hvacdiag/hvacdiag/server/internal/config"
)

// TypeRunCompleted is the event type of every message this package emits.
const TypeRunCompleted = "run.completed"

const (
	queueSize    = 256
	batchMax     = 64
	writeTimeout = 10 * time.Second
	drainTimeout = 5 * time.Second
)

// RunCompleted is the JSON payload of a run.completed message.
type RunCompleted struct {
	Type            string    `json:"type"`
	EventID         string    `json:"event_id"`
	OccurredAt      time.Time `json:"occurred_at"`
	RunID           string    `json:"run_id"`
	SourceID        string    `json:"source_id"`
	SourceType      string    `json:"source_type,omitempty"`
	EfficiencyScore int       `json:"efficiency_score"`
	Grade           string    `json:"grade"`
	TotalCost       int       `json:"total_cost"`
	OccupancyWasted float64   `json:"occupancy_wasted"`
	IssueCount      int       `json:"issue_count"`
	HighIssues      int       `json:"high_issues"`
	RowCount        int       `json:"row_count"`
}

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher queues run events and writes them to Kafka from Run.
// A disabled Publisher accepts and discards everything.
type Publisher struct {
	enabled bool
	topic   string
	w       Writer
	queue   chan kafka.Message
	now     func() time.Time

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// New builds a Publisher from cfg. Brokers are not contacted until the
// first write.
func New(cfg config.EventsConfig) *Publisher {
	if !cfg.Enabled {
		slog.Info("events: publisher disabled")
		return &Publisher{}
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.BrokerList()...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
		BatchTimeout:           50 * time.Millisecond,
	}
	slog.Info("events: publishing to kafka", "brokers", cfg.BrokerList(), "topic", cfg.Topic)
	return newWithWriter(cfg.Topic, w, queueSize)
}

func newWithWriter(topic string, w Writer, size int) *Publisher {
	return &Publisher{
		enabled: true,
		topic:   topic,
		w:       w,
		queue:   make(chan kafka.Message, size),
		now:     time.Now,
	}
}

// Enabled reports whether events leave the process.
func (p *Publisher) Enabled() bool { return p.enabled }

// Publish enqueues a run.completed event for run. It never blocks.
func (p *Publisher) Publish(run types.Run) {
	if !p.enabled {
		return
	}
	sum := diagnostic.Summarize(run.Report)
	ev := RunCompleted{
		Type:            TypeRunCompleted,
		EventID:         uuid.NewString(),
		OccurredAt:      p.now().UTC(),
		RunID:           run.ID,
		SourceID:        run.SourceID,
		SourceType:      run.SourceType,
		EfficiencyScore: run.Report.EfficiencyScore,
		Grade:           sum.Grade,
		TotalCost:       run.Report.TotalCost,
		OccupancyWasted: run.Report.OccupancyWasted,
		IssueCount:      sum.IssueCount,
		HighIssues:      sum.HighCount,
		RowCount:        run.Report.RowCount,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Error("events: encode run event", "run_id", run.ID, "err", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(run.SourceID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeRunCompleted)},
		},
	}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
		slog.Warn("events: queue full, dropping event", "run_id", run.ID, "source", run.SourceID)
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is
// left within a short deadline and closes the writer.
func (p *Publisher) Run(ctx context.Context) {
	if !p.enabled {
		<-ctx.Done()
		return
	}
	defer func() {
		if err := p.w.Close(); err != nil {
			slog.Warn("events: close writer", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			for len(p.queue) > 0 {
				p.write(drainCtx, p.batch(<-p.queue))
			}
			return
		case msg := <-p.queue:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			p.write(wctx, p.batch(msg))
			cancel()
		}
	}
}

// batch collects first plus whatever else is already queued, up to batchMax.
func (p *Publisher) batch(first kafka.Message) []kafka.Message {
	msgs := []kafka.Message{first}
	for len(msgs) < batchMax {
		select {
		case m := <-p.queue:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
	return msgs
}

func (p *Publisher) write(ctx context.Context, msgs []kafka.Message) {
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.failed.Add(int64(len(msgs)))
		slog.Error("events: kafka write failed", "topic", p.topic, "messages", len(msgs), "err", err)
		return
	}
	p.published.Add(int64(len(msgs)))
	slog.Debug("events: published", "topic", p.topic, "messages", len(msgs))
}

// Stats returns the number of events published, dropped on a full queue
// and lost to write errors.
func (p *Publisher) Stats() (published, dropped, failed int64) {
	return p.published.Load(), p.dropped.Load(), p.failed.Load()
}
