// Package bus is the in-process retained pub/sub used by the node to share
// link and indicator state between the scheduler and its observers.
package bus

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Wildcard tokens. "+" matches exactly one level, "#" matches the rest of
// the topic including zero levels and must be the last token of a filter.
const (
	SingleLevel = "+"
	MultiLevel  = "#"
)

// Topic is a sequence of comparable tokens, usually strings.
type Topic []any

// T builds a Topic, panicking on a non-comparable token.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic(fmt.Sprintf("bus: token %#v is not comparable", tok))
		}
	}
	return Topic(tokens)
}

func (t Topic) String() string {
	parts := make([]string, len(t))
	for i, tok := range t {
		parts[i] = fmt.Sprint(tok)
	}
	return strings.Join(parts, "/")
}

// Match reports whether filter (which may contain wildcards) matches topic.
func Match(filter, topic Topic) bool {
	for i, f := range filter {
		if f == MultiLevel {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if f != SingleLevel && f != topic[i] {
			return false
		}
	}
	return len(filter) == len(topic)
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

type node struct {
	children map[any]*node
	subs     []*Subscription
}

func (n *node) child(tok any, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// collect appends every subscription whose filter matches topic[i:].
func (n *node) collect(topic Topic, i int, out []*Subscription) []*Subscription {
	if h := n.children[MultiLevel]; h != nil {
		out = append(out, h.subs...)
	}
	if i == len(topic) {
		return append(out, n.subs...)
	}
	if c := n.children[topic[i]]; c != nil {
		out = c.collect(topic, i+1, out)
	}
	if c := n.children[SingleLevel]; c != nil && topic[i] != SingleLevel {
		out = c.collect(topic, i+1, out)
	}
	return out
}

type Bus struct {
	mu       sync.RWMutex
	root     *node
	retained map[string]*Message
	qLen     int
}

// NewBus creates a bus whose subscriptions buffer queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{
		root:     &node{},
		retained: make(map[string]*Message),
		qLen:     queueLen,
	}
}

func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// Publish delivers msg to every matching subscriber. A retained message
// replaces the stored value for its topic; a retained nil payload clears it
// and is still delivered. Delivery never blocks: a full subscriber queue
// drops its oldest message.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.Retained {
		key := retainKey(msg.Topic)
		if msg.Payload == nil {
			delete(b.retained, key)
		} else {
			b.retained[key] = msg
		}
	}
	for _, s := range b.root.collect(msg.Topic, 0, nil) {
		deliver(s.ch, msg)
	}
}

// Retained returns the value currently retained on topic, if any.
func (b *Bus) Retained(topic Topic) (*Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.retained[retainKey(topic)]
	return m, ok
}

func (b *Bus) subscribe(c *Connection, filter Topic) *Subscription {
	s := &Subscription{topic: filter, ch: make(chan *Message, b.qLen), conn: c}

	b.mu.Lock()
	n := b.root
	for _, tok := range filter {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, s)
	for _, m := range b.retained {
		if Match(filter, m.Topic) {
			deliver(s.ch, m)
		}
	}
	b.mu.Unlock()
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.root
	for _, tok := range s.topic {
		if n = n.child(tok, false); n == nil {
			return
		}
	}
	for i, x := range n.subs {
		if x == s {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

func retainKey(t Topic) string {
	var sb strings.Builder
	for _, tok := range t {
		fmt.Fprintf(&sb, "%T:%v\x00", tok, tok)
	}
	return sb.String()
}

func deliver(ch chan *Message, m *Message) {
	select {
	case ch <- m:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- m:
	default:
	}
}

// Connection groups the subscriptions of one component so they can be
// dropped together.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(filter Topic) *Subscription {
	s := c.bus.subscribe(c, filter)
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	return s
}

func (c *Connection) Unsubscribe(s *Subscription) {
	c.mu.Lock()
	for i, x := range c.subs {
		if x == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.bus.unsubscribe(s)
}

// Disconnect drops every subscription held by the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		c.bus.unsubscribe(s)
	}
}
