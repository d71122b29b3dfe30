package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/compass.go/pkg/l0/comm"
)

// DefaultDepth is the number of frames buffered before dropping.
const DefaultDepth = 32

// ConnectTimeout bounds the initial broker connection.
const ConnectTimeout = 10 * time.Second

// Status payloads, retained on <device>/status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Publisher mirrors telemetry frames to <prefix><device>/<type>, the type
// in lower case. The raw frame is the payload.
type Publisher struct {
	Queue          *Queue
	DeviceID       string
	ConnectTimeout time.Duration

	frames  chan []byte
	dropped atomic.Uint64
}

// NewPublisher creates a Publisher on an existing queue.
func NewPublisher(q *Queue, deviceID string, depth int) *Publisher {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Publisher{
		Queue:          q,
		DeviceID:       deviceID,
		ConnectTimeout: ConnectTimeout,
		frames:         make(chan []byte, depth),
	}
}

// NewPublisherFromURL connects to the broker at brokerURL. The broker
// marks the device offline if the connection drops.
func NewPublisherFromURL(brokerURL, deviceID string) (*Publisher, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	if opts.ClientID == "" {
		opts.SetClientID("compass-" + deviceID)
	}
	opts.SetWill(prefix+StatusTopic(deviceID), StatusOffline, 1, true)
	return NewPublisher(NewQueue(opts, prefix), deviceID, DefaultDepth), nil
}

// StatusTopic is where the device publishes its status.
func StatusTopic(deviceID string) string {
	return deviceID + "/status"
}

// FrameTopic returns the topic of an encoded frame.
func FrameTopic(deviceID string, frame []byte) (string, bool) {
	f, ok := comm.ParseFrame(string(frame))
	if !ok || f.Type == "" {
		return "", false
	}
	return deviceID + "/" + strings.ToLower(f.Type), true
}

// Dropped returns how many frames were dropped because the buffer was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Publish implements firmware.Sink. It never blocks.
func (p *Publisher) Publish(frame []byte) {
	select {
	case p.frames <- append([]byte(nil), frame...):
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			glog.Warningf("MQTT publisher behind, %d frame(s) dropped", n)
		}
	}
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	p.Queue.OnConnect = func(q *Queue) {
		q.PubWith(StatusTopic(p.DeviceID), []byte(StatusOnline), 1, true)
	}
	if err := WaitConnected(p.Queue.Connect(), p.ConnectTimeout); err != nil {
		return fmt.Errorf("MQTT connect: %w", err)
	}
	glog.Infof("MQTT telemetry as %s", p.DeviceID)
	for {
		select {
		case <-ctx.Done():
			p.Queue.PubWith(StatusTopic(p.DeviceID), []byte(StatusOffline), 1, true).WaitTimeout(time.Second)
			p.Queue.Close()
			return nil
		case frame := <-p.frames:
			if topic, ok := FrameTopic(p.DeviceID, frame); ok {
				p.Queue.Pub(topic, frame)
			}
		}
	}
}
