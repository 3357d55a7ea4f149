package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/walletglass/walletglass/service/metrics"
	"github.com/walletglass/walletglass/service/trades"
)

// Publisher defines the interface for publishing trade events to NATS.
type Publisher interface {
	// PublishTradeEvent publishes a single trade event to JetStream.
	// The event is published to the subject "trades.{wallet_address}".
	PublishTradeEvent(ctx context.Context, event *TradeEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes trade events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for trades.
	StreamName = "TRADES"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "trades.*"

	// StreamRetention is how long messages are retained.
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("walletglass-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Trade events from analyzed wallets",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishTradeEvent publishes a single trade event.
func (p *JetStreamPublisher) PublishTradeEvent(ctx context.Context, event *TradeEvent) error {
	subject := fmt.Sprintf("trades.%s", event.Wallet)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trade event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish trade: %w", err)
	}

	p.logger.Debug("published trade event",
		"subject", subject,
		"signature", event.Signature,
		"wallet", event.Wallet,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// PipelineAdapter lets a Publisher receive trades straight from the
// analysis pipeline.
type PipelineAdapter struct {
	publisher Publisher
	metrics   *metrics.Metrics
}

// NewPipelineAdapter wraps a publisher for pipeline use. m may be nil.
func NewPipelineAdapter(publisher Publisher, m *metrics.Metrics) *PipelineAdapter {
	return &PipelineAdapter{publisher: publisher, metrics: m}
}

// PublishTrade converts and publishes one finished trade record.
func (a *PipelineAdapter) PublishTrade(ctx context.Context, wallet string, rec trades.Record) error {
	subject := fmt.Sprintf("trades.%s", wallet)
	if err := a.publisher.PublishTradeEvent(ctx, FromRecord(wallet, rec)); err != nil {
		a.metrics.RecordEventPublished(subject, "error")
		return err
	}
	a.metrics.RecordEventPublished(subject, "success")
	return nil
}
