// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package events publishes run progress as Watermill messages.
//
// Topics are "<prefix>.resource.synced", "<prefix>.harmonize.completed" and
// "<prefix>.run.completed". Payloads are JSON. Without a NATS URL messages
// go to an in-process channel, which is what tests subscribe to.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/models"
)

// Topic suffixes.
const (
	TopicResourceSynced     = "resource.synced"
	TopicHarmonizeCompleted = "harmonize.completed"
	TopicRunCompleted       = "run.completed"
)

var (
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("event publisher closed")

	// ErrSubscribeUnsupported is returned by Subscribe on a NATS publisher.
	ErrSubscribeUnsupported = errors.New("subscribe is only available on the in-process transport")
)

// ResourceSynced is the payload of a resource.synced message.
type ResourceSynced struct {
	RunID string `json:"run_id"`
	models.ResourceResult
}

// HarmonizeCompleted is the payload of a harmonize.completed message.
type HarmonizeCompleted struct {
	RunID string `json:"run_id"`
	models.HarmonizeReport
}

// Publisher publishes run events.
//
// Thread Safety: Safe for concurrent use.
type Publisher struct {
	publisher message.Publisher
	channel   *gochannel.GoChannel // nil on NATS
	prefix    string

	mu     sync.RWMutex
	closed bool
}

// New creates a publisher for cfg. An empty NATS URL selects the
// in-process gochannel transport.
func New(cfg config.EventsConfig) (*Publisher, error) {
	logger := logging.NewWatermillAdapter(logging.WithComponent("events"))
	p := &Publisher{prefix: cfg.TopicPrefix}

	if cfg.NATSURL == "" {
		p.channel = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		p.publisher = p.channel
		return p, nil
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("lmsync"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	p.publisher = pub

	logging.Info().Str("url", cfg.NATSURL).Str("prefix", cfg.TopicPrefix).Msg("Run events publish to NATS")
	return p, nil
}

// Topic returns the full topic name for suffix.
func (p *Publisher) Topic(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "." + suffix
}

// Subscribe returns the messages of a topic suffix. Only the in-process
// transport supports it.
func (p *Publisher) Subscribe(ctx context.Context, suffix string) (<-chan *message.Message, error) {
	if p.channel == nil {
		return nil, ErrSubscribeUnsupported
	}
	return p.channel.Subscribe(ctx, p.Topic(suffix))
}

func (p *Publisher) publish(suffix, runID string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", suffix, err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("run_id", runID)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)

	if err := p.publisher.Publish(p.Topic(suffix), msg); err != nil {
		return fmt.Errorf("publish %s: %w", suffix, err)
	}
	return nil
}

// ResourceSynced publishes the result of one resource sync.
func (p *Publisher) ResourceSynced(_ context.Context, runID string, result models.ResourceResult) error {
	return p.publish(TopicResourceSynced, runID, ResourceSynced{RunID: runID, ResourceResult: result})
}

// HarmonizeCompleted publishes a harmonizer report.
func (p *Publisher) HarmonizeCompleted(_ context.Context, runID string, report *models.HarmonizeReport) error {
	payload := HarmonizeCompleted{RunID: runID}
	if report != nil {
		payload.HarmonizeReport = *report
	}
	return p.publish(TopicHarmonizeCompleted, runID, payload)
}

// RunCompleted publishes a finished run summary.
func (p *Publisher) RunCompleted(_ context.Context, run *models.RunSummary) error {
	return p.publish(TopicRunCompleted, run.ID, run)
}

// Close closes the transport.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
