package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("at least one pubsub topic must be configured")

	// ErrTopicNotConfigured is returned by Send for a topic that cannot be
	// resolved to a resource name. Retrying will not help.
	ErrTopicNotConfigured = errors.New("pubsub topic not configured")
)

// Client publishes marketplace events to Pub/Sub. Publisher handles are
// created on first use per topic and flushed by Stop.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	ordering  bool

	mu      sync.Mutex
	handles map[string]*pubsub.Publisher
	stopped bool
}

// NewClient connects to Pub/Sub and fails unless every configured topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    raw,
		projectID: projectID,
		topics:    topics,
		ordering:  cfg.OrderingEnabled,
		handles:   map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":   topics,
			"ordering": c.ordering,
		}), "pubsub client initialized")
	}
	return c, nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	seen := map[string]bool{}
	for _, name := range []string{cfg.OrdersTopic, cfg.PayoutsTopic} {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Ping checks that every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, name := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topicResourceName(name)})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %q does not exist in project %s", name, c.projectID)
		case err != nil:
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
	}
	return nil
}

// Send publishes msg to topic and waits for the server ack. When ordering is
// disabled any ordering key is dropped; when enabled a failed publish resumes
// the key so later events for the same aggregate are not blocked.
func (c *Client) Send(ctx context.Context, topic string, msg *pubsub.Message) error {
	handle, err := c.publisher(topic)
	if err != nil {
		return err
	}
	if !c.ordering {
		msg.OrderingKey = ""
	}
	if _, err := handle.Publish(ctx, msg).Get(ctx); err != nil {
		if msg.OrderingKey != "" {
			handle.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}

func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	name := c.topicResourceName(topic)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrTopicNotConfigured, topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, errors.New("pubsub client stopped")
	}
	if handle, ok := c.handles[name]; ok {
		return handle, nil
	}
	handle := c.client.Publisher(name)
	handle.EnableMessageOrdering = c.ordering
	c.handles[name] = handle
	return handle, nil
}

// Stop flushes pending publishes. Send fails after Stop.
func (c *Client) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for _, handle := range c.handles {
		handle.Stop()
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case c.projectID == "":
		return ""
	}
	return "projects/" + c.projectID + "/topics/" + name
}
