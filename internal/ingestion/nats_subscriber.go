package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"LaunchLedger/internal/core"
	"LaunchLedger/internal/event"
	"LaunchLedger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Processor applies one event. *core.EventIngestor implements it.
type Processor interface {
	Process(ctx context.Context, evt event.Event) (core.Result, error)
}

// SubscriberConfig names the JetStream stream and durable consumer.
type SubscriberConfig struct {
	Stream     string
	Subject    string
	Consumer   string
	AckWait    time.Duration
	MaxDeliver int
	RetryDelay time.Duration
}

// DefaultSubscriberConfig uses explicit ack, a 30s ack wait and five deliveries.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		Stream:     EventsStream,
		Subject:    EventsSubject,
		Consumer:   "launchledger-ingest",
		AckWait:    30 * time.Second,
		MaxDeliver: 5,
		RetryDelay: 2 * time.Second,
	}
}

// message is the part of jetstream.Msg the handler needs.
type message interface {
	Data() []byte
	Subject() string
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// DeadLetter is the payload parked on a dead-letter subject. Event is the
// original wire event, so it can be replayed through the admin inject route.
type DeadLetter struct {
	Reason     string          `json:"reason"`
	Error      string          `json:"error"`
	Subject    string          `json:"subject"`
	Deliveries uint64          `json:"deliveries"`
	Event      json.RawMessage `json:"event"`
}

var errLaunchHeld = errors.New("an earlier event for this launch is awaiting redelivery")

// NATSSubscriber consumes launch events from JetStream and applies them
// in delivery order. Messages are acked once the outcome is final: applied,
// duplicate, ignored, or rejected for a deterministic reason.
//
// A storage failure naks the event and holds its launch: later events for
// that launch are nak'd unprocessed until the failed one settles, so a
// redelivery never lands behind a newer slot. Out-of-order events, and
// retryable ones that run out of deliveries, are parked on a dead-letter
// subject instead of being dropped.
type NATSSubscriber struct {
	js         jetstream.JetStream
	deadLetter streamPublisher
	proc       Processor
	cfg        SubscriberConfig
	metrics    *observability.Metrics
	log        zerolog.Logger
	consumer   jetstream.ConsumeContext

	holdMu sync.Mutex
	holds  map[string]string // launch -> idempotency key of the held event
}

func NewNATSSubscriber(js jetstream.JetStream, proc Processor, cfg SubscriberConfig, metrics *observability.Metrics, log zerolog.Logger) *NATSSubscriber {
	ns := &NATSSubscriber{
		js:      js,
		proc:    proc,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		holds:   make(map[string]string),
	}
	if js != nil {
		ns.deadLetter = js
	}
	return ns
}

// Start creates or updates the durable consumer and begins consuming.
func (ns *NATSSubscriber) Start(ctx context.Context) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, ns.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       ns.cfg.Consumer,
		FilterSubject: ns.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ns.cfg.AckWait,
		MaxDeliver:    ns.cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", ns.cfg.Consumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ns.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", ns.cfg.Consumer, err)
	}
	ns.consumer = cc

	ns.log.Info().Str("subject", ns.cfg.Subject).Str("consumer", ns.cfg.Consumer).Msg("subscribed")
	return nil
}

func (ns *NATSSubscriber) handle(ctx context.Context, msg message) {
	start := time.Now()
	outcome := ns.dispatch(ctx, msg)

	if ns.metrics != nil {
		ns.metrics.NATSMessages.WithLabelValues(outcome).Inc()
		ns.metrics.NATSPullLatency.Observe(time.Since(start).Seconds())
	}
}

// dispatch settles msg and returns the outcome label.
func (ns *NATSSubscriber) dispatch(ctx context.Context, msg message) string {
	evt, err := ParseEvent(msg.Data())
	if err != nil {
		ns.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed message")
		ns.settle(msg.Term())
		return "malformed"
	}

	launch, key := evt.LaunchAddress(), evt.IdempotencyKey()
	log := ns.log.With().Str("signature", evt.Signature()).Str("launch", launch).Logger()

	if ns.heldByOther(launch, key) {
		if ns.lastDelivery(msg) {
			return ns.park(ctx, msg, "deferred", errLaunchHeld, log)
		}
		log.Debug().Msg("launch held; deferring event")
		ns.settle(msg.NakWithDelay(ns.cfg.RetryDelay))
		return "deferred"
	}

	res, err := ns.proc.Process(ctx, evt)
	if err == nil {
		ns.release(launch, key)
		ns.settle(msg.Ack())
		switch {
		case res.Duplicate:
			return "duplicate"
		case res.Ignored:
			return "ignored"
		default:
			return "applied"
		}
	}

	if errors.Is(err, context.Canceled) {
		ns.settle(msg.NakWithDelay(ns.cfg.RetryDelay))
		return "retry"
	}

	kind := core.KindOf(err)
	if kind.Retryable() && !ns.lastDelivery(msg) {
		if kind == core.KindStorage {
			ns.hold(launch, key)
		}
		log.Warn().Err(err).Str("kind", kind.String()).Msg("event will be redelivered")
		ns.settle(msg.NakWithDelay(ns.cfg.RetryDelay))
		return "retry"
	}

	ns.release(launch, key)
	if kind.Retryable() || kind == core.KindOutOfOrder {
		return ns.park(ctx, msg, kind.String(), err, log)
	}

	ns.settle(msg.Term())
	return "rejected_" + kind.String()
}

// park copies msg to the dead-letter subject for reason and terminates it.
// If the copy fails the message is nak'd so JetStream keeps it.
func (ns *NATSSubscriber) park(ctx context.Context, msg message, reason string, cause error, log zerolog.Logger) string {
	dl := DeadLetter{
		Reason:  reason,
		Error:   cause.Error(),
		Subject: msg.Subject(),
		Event:   json.RawMessage(msg.Data()),
	}
	if md, err := msg.Metadata(); err == nil {
		dl.Deliveries = md.NumDelivered
	}

	if err := ns.publishDeadLetter(ctx, dl); err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("dead-letter publish failed; leaving event in stream")
		ns.settle(msg.NakWithDelay(ns.cfg.RetryDelay))
		return "park_failed"
	}

	log.Error().Err(cause).Str("reason", reason).Msg("event parked on dead-letter subject")
	ns.settle(msg.Term())
	return "parked_" + reason
}

func (ns *NATSSubscriber) publishDeadLetter(ctx context.Context, dl DeadLetter) error {
	if ns.deadLetter == nil {
		return errors.New("no dead-letter publisher")
	}
	payload, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	_, err = ns.deadLetter.Publish(ctx, DeadLetterSubjectPrefix+dl.Reason, payload)
	return err
}

// lastDelivery reports whether msg will not be redelivered after a nak.
func (ns *NATSSubscriber) lastDelivery(msg message) bool {
	if ns.cfg.MaxDeliver <= 0 {
		return false
	}
	md, err := msg.Metadata()
	if err != nil {
		return false
	}
	return md.NumDelivered >= uint64(ns.cfg.MaxDeliver)
}

func (ns *NATSSubscriber) hold(launch, key string) {
	ns.holdMu.Lock()
	defer ns.holdMu.Unlock()
	if _, ok := ns.holds[launch]; !ok {
		ns.holds[launch] = key
	}
}

// release clears the hold on launch if key is the event holding it.
func (ns *NATSSubscriber) release(launch, key string) {
	ns.holdMu.Lock()
	defer ns.holdMu.Unlock()
	if ns.holds[launch] == key {
		delete(ns.holds, launch)
	}
}

func (ns *NATSSubscriber) heldByOther(launch, key string) bool {
	ns.holdMu.Lock()
	defer ns.holdMu.Unlock()
	held, ok := ns.holds[launch]
	return ok && held != key
}

func (ns *NATSSubscriber) settle(err error) {
	if err != nil {
		ns.log.Warn().Err(err).Msg("settle message")
	}
}

// Stop drains the consumer.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	ns.log.Info().Msg("NATS subscriber stopped")
}

const (
	EventsStream  = "LAUNCH_EVENTS"
	EventsSubject = "launch.events.>"
	NoticesStream = "LAUNCH_NOTICES"

	DeadLetterStream        = "LAUNCH_DEAD_LETTER"
	DeadLetterSubjectPrefix = "launch.deadletter."
)

// EnsureStreams creates the inbound event and outbound notice streams.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      EventsStream,
			Subjects:  []string{EventsSubject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       NoticesStream,
			Subjects:   []string{"launch.graduation.>", "launch.refund.>"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Duplicates: 10 * time.Minute,
			Replicas:   1,
		},
		{
			Name:      DeadLetterStream,
			Subjects:  []string{DeadLetterSubjectPrefix + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    30 * 24 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("launchledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
