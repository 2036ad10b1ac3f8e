// Package mqtt implements the MQTT transport for qia.
//
// MQTT is well-suited for IoT devices and lightweight pub/sub messaging.
// This transport subscribes to "<command prefix>/+", where the last topic
// segment is the user id, and publishes every result envelope of that user
// to "<response prefix>/<user>".
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/tidwall/gjson"

	"github.com/nadzzz/qia/internal/auth"
	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/session"
	"github.com/nadzzz/qia/internal/task"
	"github.com/nadzzz/qia/internal/transport"
)

var errNotConnected = errors.New("mqtt client not connected")

// Options configures the transport.
type Options struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	CommandTopic  string
	ResponseTopic string
	// Auth, when set, requires a "token" field in every command that
	// belongs to the topic's user. Without it the broker's ACLs are trusted.
	Auth     auth.Authenticator
	Sessions *session.Manager
}

// Transport implements transport.Transport over MQTT.
type Transport struct {
	opts    Options
	client  mqtt.Client
	publish func(topic string, payload []byte) error

	mu    sync.Mutex
	conns map[task.UserID]*topicConn
}

// New creates a new MQTT transport.
func New(opts Options) *Transport {
	if opts.CommandTopic == "" {
		opts.CommandTopic = "qia/commands"
	}
	if opts.ResponseTopic == "" {
		opts.ResponseTopic = "qia/responses"
	}
	opts.CommandTopic = strings.TrimRight(opts.CommandTopic, "/")
	opts.ResponseTopic = strings.TrimRight(opts.ResponseTopic, "/")
	return &Transport{opts: opts, conns: make(map[task.UserID]*topicConn)}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "mqtt" }

// Listen connects to the MQTT broker and subscribes to the command topic.
// Commands run through the session manager, so they share per-user ordering
// and fan-out with every other session of the user.
func (t *Transport) Listen(ctx context.Context, _ transport.Backend) error {
	if t.opts.Sessions == nil {
		return fmt.Errorf("mqtt transport: session manager is required")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(t.opts.Broker).
		SetClientID(t.opts.ClientID).
		SetUsername(t.opts.Username).
		SetPassword(t.opts.Password).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(func(c mqtt.Client) { t.subscribe(ctx, c) }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("mqtt transport connection lost", "broker", t.opts.Broker, "error", err)
		})

	t.client = mqtt.NewClient(opts)
	t.publish = func(topic string, payload []byte) error {
		if !t.client.IsConnectionOpen() {
			return errNotConnected
		}
		t.client.Publish(topic, 1, false, payload)
		return nil
	}

	tok := t.client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect %s: timed out", t.opts.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", t.opts.Broker, err)
	}
	slog.Info("mqtt transport listening", "broker", t.opts.Broker, "topic", t.opts.CommandTopic+"/+")

	<-ctx.Done()
	return t.Close()
}

func (t *Transport) subscribe(ctx context.Context, c mqtt.Client) {
	topic := t.opts.CommandTopic + "/+"
	tok := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		t.handleMessage(ctx, msg.Topic(), msg.Payload())
	})
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			slog.Error("mqtt subscribe failed", "topic", topic, "error", err)
		}
	}()
}

// handleMessage runs one command published on a command topic.
func (t *Transport) handleMessage(ctx context.Context, topic string, payload []byte) {
	user := task.UserID(strings.TrimPrefix(topic, t.opts.CommandTopic+"/"))
	if user == "" || strings.Contains(string(user), "/") {
		slog.Debug("ignoring message on unexpected topic", "topic", topic)
		return
	}
	if t.opts.Auth != nil {
		if err := t.checkToken(ctx, user, payload); err != nil {
			slog.Warn("mqtt command rejected", "user", user, "error", err)
			t.reject(user)
			return
		}
	}
	c := t.conn(user)
	if err := t.opts.Sessions.HandleFrame(ctx, user, c, payload); err != nil {
		slog.Warn("mqtt command failed", "user", user, "error", err)
	}
}

func (t *Transport) checkToken(ctx context.Context, user task.UserID, payload []byte) error {
	token := gjson.GetBytes(payload, "token").String()
	return auth.CheckIdentity(ctx, t.opts.Auth, token, user)
}

// reject answers an unauthenticated command on the response topic only;
// the user's other sessions are not told.
func (t *Transport) reject(user task.UserID) {
	out, err := message.Encode(message.ErrorFrame{Type: "error", Message: "Authentication failed"})
	if err != nil {
		return
	}
	if err := t.publish(t.opts.ResponseTopic+"/"+string(user), out); err != nil {
		slog.Debug("mqtt reject not delivered", "user", user, "error", err)
	}
}

// conn returns the registered response connection of user.
func (t *Transport) conn(user task.UserID) *topicConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[user]
	if !ok {
		c = &topicConn{t: t, user: user, topic: t.opts.ResponseTopic + "/" + string(user)}
		t.conns[user] = c
		t.opts.Sessions.Register(user, c)
	}
	return c
}

// Close unregisters the response topics and disconnects from the broker.
func (t *Transport) Close() error {
	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[task.UserID]*topicConn)
	t.mu.Unlock()
	for user, c := range conns {
		t.opts.Sessions.Unregister(user, c)
	}
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
	return nil
}

// topicConn is a user's response topic seen as a session connection.
type topicConn struct {
	t     *Transport
	user  task.UserID
	topic string
}

func (c *topicConn) ID() string { return "mqtt:" + c.topic }

func (c *topicConn) Send(data []byte) error {
	return c.t.publish(c.topic, data)
}

// Close forgets the connection; the next command of the user registers a
// new one.
func (c *topicConn) Close(int, string) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.t.conns[c.user] == c {
		delete(c.t.conns, c.user)
	}
}
