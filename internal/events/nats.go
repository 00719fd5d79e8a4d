package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig holds the JetStream publisher settings.
type NATSConfig struct {
	URL string `yaml:"url"`

	// StreamName is the JetStream stream decisions are persisted to.
	StreamName string `yaml:"stream"`

	// SubjectPrefix is prepended to every published subject.
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultNATSConfig returns production defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		StreamName:    "RATEGATE",
		SubjectPrefix: "rategate",
	}
}

// natsPublisher implements Publisher using NATS JetStream.
type natsPublisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg NATSConfig
}

// NewNATSPublisher connects to NATS and ensures the decision stream
// exists.
func NewNATSPublisher(ctx context.Context, cfg NATSConfig) (Publisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "RATEGATE"
	}

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subjects := []string{cfg.StreamName + ".>"}
	if cfg.SubjectPrefix != "" && cfg.SubjectPrefix != cfg.StreamName {
		subjects = []string{cfg.SubjectPrefix + ".>"}
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: subjects,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return &natsPublisher{nc: nc, js: js, cfg: cfg}, nil
}

// Publish implements Publisher.
func (p *natsPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	fullSubject := subject
	if p.cfg.SubjectPrefix != "" {
		fullSubject = p.cfg.SubjectPrefix + "." + subject
	}

	if _, err := p.js.Publish(ctx, fullSubject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", fullSubject, err)
	}
	return nil
}

// Close implements Publisher.
func (p *natsPublisher) Close() error {
	p.nc.Close()
	return nil
}
