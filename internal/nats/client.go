package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/camstream/internal/events"
)

// SessionControl is the part of the session controller reachable over NATS.
type SessionControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Client mirrors session events to NATS and answers control requests.
// Gracefully degrades when NATS is unavailable.
type Client struct {
	url      string
	subjects Subjects
	bus      *events.Bus
	control  SessionControl
	logger   *slog.Logger

	mu        sync.RWMutex
	conn      *nats.Conn
	sub       *nats.Subscription
	connected bool
	ctx       context.Context
}

// NewClient creates a client for url. control may be nil to disable
// remote start/stop.
func NewClient(url string, subjects Subjects, bus *events.Bus, control SessionControl, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:      url,
		subjects: subjects,
		bus:      bus,
		control:  control,
		logger:   logger.With("component", "nats-client"),
		ctx:      context.Background(),
	}
}

// Connect establishes a connection to the NATS server.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := []nats.Option{
		nats.Name("camstream-" + c.subjects.Node),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setConnected(false)
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			} else {
				c.logger.Debug("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setConnected(true)
			c.logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.logger.Warn("Failed to connect to NATS, running in offline mode", "error", err)
		return err
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("Connected to NATS", "url", c.url)

	if c.control != nil {
		sub, err := conn.Subscribe(c.subjects.Control(), c.handleControl)
		if err != nil {
			c.logger.Warn("Failed to subscribe to control requests", "error", err)
		} else {
			c.sub = sub
		}
	}
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Serve connects, forwards bus events until ctx is cancelled, then closes.
// A failed connect is retried by the supervisor.
func (c *Client) Serve(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	unsubState := c.bus.Subscribe(func(e events.StateChangedEvent) {
		c.PublishState(StateMessage{
			Node:      c.subjects.Node,
			Timestamp: e.Timestamp,
			State:     e.State,
			Streaming: e.Streaming,
			StartTime: e.StartTime,
			Reason:    e.Reason,
		})
	})
	defer unsubState()

	unsubFault := c.bus.Subscribe(func(e events.StreamFaultEvent) {
		c.PublishFault(FaultMessage{
			Node:      c.subjects.Node,
			Timestamp: e.Timestamp,
			Source:    e.Source,
			ExitCode:  e.ExitCode,
			Error:     e.Error,
		})
	})
	defer unsubFault()

	if err := c.Connect(); err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer c.Close()

	<-ctx.Done()
	return ctx.Err()
}

func (c *Client) handleControl(msg *nats.Msg) {
	ctrl, err := UnmarshalControl(msg.Data)
	reply := ControlReply{Action: ctrl.Action}
	if err != nil {
		reply.Error = "invalid control message: " + err.Error()
		c.respond(msg, reply)
		return
	}

	c.logger.Info("Received control command", "action", ctrl.Action, "reason", ctrl.Reason)

	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()

	switch ctrl.Action {
	case "start":
		err = c.control.Start(ctx)
	case "stop":
		err = c.control.Stop(ctx)
	default:
		err = fmt.Errorf("unknown action %q", ctrl.Action)
	}
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.OK = true
	}
	c.respond(msg, reply)
}

func (c *Client) respond(msg *nats.Msg, reply ControlReply) {
	if msg.Reply == "" {
		return
	}
	data, err := reply.Marshal()
	if err != nil {
		c.logger.Warn("Failed to marshal control reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		c.logger.Warn("Failed to send control reply", "error", err)
	}
}

// PublishState publishes a state change to NATS.
// No-op if not connected.
func (c *Client) PublishState(m StateMessage) {
	c.publish(c.subjects.State(), m.Marshal)
}

// PublishFault publishes a pipeline fault to NATS.
// No-op if not connected.
func (c *Client) PublishFault(m FaultMessage) {
	c.publish(c.subjects.Fault(), m.Marshal)
}

func (c *Client) publish(subject string, marshal func() ([]byte, error)) {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return
	}

	data, err := marshal()
	if err != nil {
		c.logger.Warn("Failed to marshal message", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		c.logger.Warn("Failed to publish message", "subject", subject, "error", err)
	}
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.logger.Debug("NATS client closed")
}

// RequestControl sends a start or stop request to a node and waits for
// the reply. It backs the CLI.
func RequestControl(ctx context.Context, url string, subjects Subjects, action string) (ControlReply, error) {
	conn, err := nats.Connect(url, nats.Name("camstream-ctl"))
	if err != nil {
		return ControlReply{}, err
	}
	defer conn.Close()

	data, err := ControlMessage{Action: action, Reason: "cli"}.Marshal()
	if err != nil {
		return ControlReply{}, err
	}
	msg, err := conn.RequestWithContext(ctx, subjects.Control(), data)
	if err != nil {
		return ControlReply{}, err
	}
	return UnmarshalReply(msg.Data)
}
