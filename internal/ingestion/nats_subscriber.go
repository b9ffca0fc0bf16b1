package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds commands
// into the protocol core via the eventChan. Each subject maps to one command
// type so producers can scale independently.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped command from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to command types
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "cover.pools.create.>", EventType: "PoolCreate", ConsumerName: "ledger-pool-create", StreamName: "COVER_POOLS"},
		{Subject: "cover.pools.update.>", EventType: "PoolUpdate", ConsumerName: "ledger-pool-update", StreamName: "COVER_POOLS"},
		{Subject: "cover.pools.deactivate.>", EventType: "PoolDeactivate", ConsumerName: "ledger-pool-deactivate", StreamName: "COVER_POOLS"},
		{Subject: "cover.pools.deposit.>", EventType: "Deposit", ConsumerName: "ledger-deposit", StreamName: "COVER_POOLS"},
		{Subject: "cover.pools.withdraw.>", EventType: "Withdraw", ConsumerName: "ledger-withdraw", StreamName: "COVER_POOLS"},
		{Subject: "cover.products.create.>", EventType: "CoverCreate", ConsumerName: "ledger-cover-create", StreamName: "COVER_PRODUCTS"},
		{Subject: "cover.products.capacity.>", EventType: "CoverCapacityUpdate", ConsumerName: "ledger-cover-capacity", StreamName: "COVER_PRODUCTS"},
		{Subject: "cover.products.deactivate.>", EventType: "CoverDeactivate", ConsumerName: "ledger-cover-deactivate", StreamName: "COVER_PRODUCTS"},
		{Subject: "cover.products.purchase.>", EventType: "CoverPurchase", ConsumerName: "ledger-purchase", StreamName: "COVER_PRODUCTS"},
		{Subject: "cover.products.lp_payout.>", EventType: "LPPayoutClaim", ConsumerName: "ledger-lp-payout", StreamName: "COVER_PRODUCTS"},
		{Subject: "cover.gov.propose.>", EventType: "ProposalCreate", ConsumerName: "ledger-propose", StreamName: "COVER_GOVERNANCE"},
		{Subject: "cover.gov.vote.>", EventType: "VoteCast", ConsumerName: "ledger-vote", StreamName: "COVER_GOVERNANCE"},
		{Subject: "cover.gov.execute.>", EventType: "ProposalExecute", ConsumerName: "ledger-execute", StreamName: "COVER_GOVERNANCE"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "COVER_POOLS",
			Subjects:  []string{"cover.pools.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COVER_PRODUCTS",
			Subjects:  []string{"cover.products.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COVER_GOVERNANCE",
			Subjects:  []string{"cover.gov.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
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
