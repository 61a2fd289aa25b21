package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Event types
const (
	EventWorkspaceCreated       = "workspace.created"
	EventWorkspaceStatusChanged = "workspace.status_changed"
	EventWorkspaceCancelled     = "workspace.cancelled"
	EventWorkspaceDeleted       = "workspace.deleted"
)

// WorkspaceCreatedEvent is published when a new workspace is provisioned
type WorkspaceCreatedEvent struct {
	EventType   string    `json:"event_type"`
	WorkspaceID string    `json:"workspace_id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	PlanType    string    `json:"plan_type"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// WorkspaceStatusChangedEvent is published when a billing event moves a
// workspace between lifecycle states
type WorkspaceStatusChangedEvent struct {
	EventType   string    `json:"event_type"`
	WorkspaceID string    `json:"workspace_id"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	PlanType    string    `json:"plan_type"`
	Timestamp   time.Time `json:"timestamp"`
}

// WorkspaceCancelledEvent is published when a subscription is cancelled
type WorkspaceCancelledEvent struct {
	EventType   string    `json:"event_type"`
	WorkspaceID string    `json:"workspace_id"`
	PlanType    string    `json:"plan_type"`
	EndsAt      time.Time `json:"ends_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// WorkspaceDeletedEvent is published when an owner deletes a workspace
type WorkspaceDeletedEvent struct {
	EventType   string    `json:"event_type"`
	WorkspaceID string    `json:"workspace_id"`
	OwnerID     string    `json:"owner_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client publishes workspace lifecycle events over NATS JetStream
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Config holds NATS connection options
type Config struct {
	URL string
}

// NewClient creates a new NATS client
func NewClient(cfg *Config) (*Client, error) {
	log.Printf("[NATS] Connecting to %s", cfg.URL)

	opts := []nats.Option{
		nats.Name("workspace-manager"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[NATS] Disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// LimitsPolicy so multiple downstream consumers can read the stream
	_, err = js.AddStream(&nats.StreamConfig{
		Name:        "WORKSPACE_EVENTS",
		Description: "Stream for workspace lifecycle events",
		Subjects:    []string{"workspace.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour * 7,
		MaxMsgs:     100000,
		Discard:     nats.DiscardOld,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		log.Printf("[NATS] Warning: Could not create stream (may already exist): %v", err)
	}

	log.Printf("[NATS] Connected successfully to %s", cfg.URL)

	return &Client{conn: conn, js: js}, nil
}

// Close drains and closes the NATS connection
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn.Close()
}

// PublishWorkspaceCreated publishes a workspace created event. Safe to call
// on a nil client; events are best-effort and never block provisioning.
func (c *Client) PublishWorkspaceCreated(ctx context.Context, event *WorkspaceCreatedEvent) error {
	event.EventType = EventWorkspaceCreated
	return c.publish(ctx, EventWorkspaceCreated, event, func() { event.Timestamp = time.Now().UTC() })
}

// PublishWorkspaceStatusChanged publishes a status transition event.
func (c *Client) PublishWorkspaceStatusChanged(ctx context.Context, event *WorkspaceStatusChangedEvent) error {
	event.EventType = EventWorkspaceStatusChanged
	return c.publish(ctx, EventWorkspaceStatusChanged, event, func() { event.Timestamp = time.Now().UTC() })
}

// PublishWorkspaceCancelled publishes a cancellation event.
func (c *Client) PublishWorkspaceCancelled(ctx context.Context, event *WorkspaceCancelledEvent) error {
	event.EventType = EventWorkspaceCancelled
	return c.publish(ctx, EventWorkspaceCancelled, event, func() { event.Timestamp = time.Now().UTC() })
}

// PublishWorkspaceDeleted publishes a deletion event.
func (c *Client) PublishWorkspaceDeleted(ctx context.Context, event *WorkspaceDeletedEvent) error {
	event.EventType = EventWorkspaceDeleted
	return c.publish(ctx, EventWorkspaceDeleted, event, func() { event.Timestamp = time.Now().UTC() })
}

func (c *Client) publish(ctx context.Context, subject string, event interface{}, stamp func()) error {
	if c == nil || c.js == nil {
		log.Printf("[NATS] Client not initialized, skipping publish of %s", subject)
		return nil
	}

	stamp()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	maxRetries := 3
	var ack *nats.PubAck
	for attempt := 1; attempt <= maxRetries; attempt++ {
		ack, err = c.js.Publish(subject, data)
		if err == nil {
			break
		}
		log.Printf("[NATS] Attempt %d/%d: Failed to publish %s event: %v", attempt, maxRetries, subject, err)
		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while retrying publish: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, err)
	}

	log.Printf("[NATS] Published %s event (seq: %d)", subject, ack.Sequence)
	return nil
}
