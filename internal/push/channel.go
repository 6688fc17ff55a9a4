// Package push owns the live event channel from the telemetry backend and
// the ingestor that folds push events into the sensor registry.
package push

import (
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// State is the connection lifecycle state of the channel.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Handler receives the raw payload of one push event. Handlers run on the
// delivery goroutine and must not block.
type Handler func(payload []byte)

// ChannelConfig holds push channel configuration.
type ChannelConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // event names are published under this prefix

	RetryFloor   time.Duration // first reconnect delay
	RetryCeiling time.Duration // delay growth cap
	MaxAttempts  int           // reconnect attempts before giving up
}

type subscription struct {
	id      int
	handler Handler
}

// Channel maintains exactly one live push connection per dashboard session.
// Reconnection is owned here rather than delegated to paho so the bounded
// retry policy stays explicit and testable.
type Channel struct {
	cfg  ChannelConfig
	dial func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.Mutex
	client mqtt.Client
	state  State
	closed bool
	epoch  int // bumped on every Connect/Close to invalidate stale retry loops

	subs   map[string][]subscription
	nextID int
}

// NewChannel creates a disconnected channel. Call Connect to start the
// handshake.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.RetryFloor <= 0 {
		cfg.RetryFloor = 500 * time.Millisecond
	}
	if cfg.RetryCeiling < cfg.RetryFloor {
		cfg.RetryCeiling = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Channel{
		cfg:   cfg,
		dial:  mqtt.NewClient,
		state: StateDisconnected,
		subs:  make(map[string][]subscription),
	}
}

// Connect initiates the handshake. It is idempotent: a channel that is
// already connected or connecting is left alone.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.epoch++
	epoch := c.epoch

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	// Reconnection is handled by retryLoop, not paho.
	opts.SetAutoReconnect(false)
	opts.SetOnConnectHandler(func(mqtt.Client) { c.onConnect(epoch) })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { c.onConnectionLost(epoch, err) })

	c.client = c.dial(opts)
	c.mu.Unlock()

	go c.retryLoop(epoch)
}

// retryLoop attempts the handshake with delay growth bounded between the
// floor and the ceiling, giving up after MaxAttempts failures.
func (c *Channel) retryLoop(epoch int) {
	delay := c.cfg.RetryFloor

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		c.mu.Lock()
		if c.closed || c.epoch != epoch || c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		client := c.client
		c.mu.Unlock()

		token := client.Connect()
		token.Wait()
		if token.Error() == nil {
			// onConnect moves the state forward and replays subscriptions.
			return
		}

		log.Printf("Channel: Connect attempt %d/%d failed: %v", attempt, c.cfg.MaxAttempts, token.Error())
		if attempt == c.cfg.MaxAttempts {
			break
		}

		time.Sleep(delay)
		delay *= 2
		if delay > c.cfg.RetryCeiling {
			delay = c.cfg.RetryCeiling
		}
	}

	c.mu.Lock()
	if c.epoch == epoch && c.state == StateConnecting {
		c.state = StateDisconnected
		log.Printf("Channel: Giving up after %d attempts", c.cfg.MaxAttempts)
	}
	c.mu.Unlock()
}

// onConnect records the connected state and replays all subscriptions,
// so handlers survive reconnects without re-registering.
func (c *Channel) onConnect(epoch int) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	client := c.client
	events := make([]string, 0, len(c.subs))
	for event := range c.subs {
		events = append(events, event)
	}
	c.mu.Unlock()

	log.Printf("Channel: Connected to %s", c.cfg.Broker)
	for _, event := range events {
		c.subscribeTopic(client, event)
	}
}

// onConnectionLost starts a fresh bounded retry cycle.
func (c *Channel) onConnectionLost(epoch int, err error) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	log.Printf("Channel: Connection lost: %v", err)
	c.state = StateConnecting
	c.mu.Unlock()

	go c.retryLoop(epoch)
}

// IsConnected reports whether the channel currently has a live connection.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// CurrentState returns the connection lifecycle state.
func (c *Channel) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a handler for a named event. Multiple handlers per
// event are allowed and run in registration order. The returned function
// removes exactly this handler.
func (c *Channel) Subscribe(event string, handler Handler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	first := len(c.subs[event]) == 0
	c.subs[event] = append(c.subs[event], subscription{id: id, handler: handler})
	client := c.client
	connected := c.state == StateConnected
	c.mu.Unlock()

	if first && connected {
		c.subscribeTopic(client, event)
	}

	return func() {
		c.mu.Lock()
		list := c.subs[event]
		for i, sub := range list {
			if sub.id == id {
				c.subs[event] = append(list[:i], list[i+1:]...)
				break
			}
		}
		last := len(c.subs[event]) == 0
		if last {
			delete(c.subs, event)
		}
		cl := c.client
		connected := c.state == StateConnected
		c.mu.Unlock()

		if last && connected && cl != nil {
			cl.Unsubscribe(c.topic(event))
		}
	}
}

// Unsubscribe removes all handlers for an event.
func (c *Channel) Unsubscribe(event string) {
	c.mu.Lock()
	_, had := c.subs[event]
	delete(c.subs, event)
	cl := c.client
	connected := c.state == StateConnected
	c.mu.Unlock()

	if had && connected && cl != nil {
		cl.Unsubscribe(c.topic(event))
	}
}

// subscribeTopic installs the broker-side subscription for an event and
// wires delivery into dispatch.
func (c *Channel) subscribeTopic(client mqtt.Client, event string) {
	topic := c.topic(event)
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		c.dispatch(event, msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("Channel: Subscribe to %s failed: %v", topic, token.Error())
	}
}

// dispatch invokes every handler registered for the event, in order.
func (c *Channel) dispatch(event string, payload []byte) {
	c.mu.Lock()
	list := c.subs[event]
	handlers := make([]Handler, len(list))
	for i, sub := range list {
		handlers[i] = sub.handler
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

func (c *Channel) topic(event string) string {
	if c.cfg.TopicPrefix == "" {
		return event
	}
	return c.cfg.TopicPrefix + "/" + event
}

// Close tears the channel down, releasing all handlers. The channel
// cannot be reused afterwards.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	c.state = StateDisconnected
	client := c.client
	c.client = nil
	c.subs = make(map[string][]subscription)
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
	log.Println("Channel: Closed")
}
