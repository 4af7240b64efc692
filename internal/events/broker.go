// Package events fans download progress and status changes out to
// subscribers such as WebSocket connections.
package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/progress"
)

type Type string

const (
	TypeProgress Type = "progress"
	TypeStatus   Type = "status"
)

// Event is a single notification about one download task. Its wire form
// depends on Type: progress events always carry every progress field, status
// events carry the status and error.
type Event struct {
	Type   Type  `json:"type"`
	TaskID int64 `json:"taskId"`

	Percent         float64 `json:"percent,omitempty"`
	DownloadedBytes int64   `json:"downloadedBytes,omitempty"`
	TotalBytes      int64   `json:"totalBytes,omitempty"`
	SpeedLabel      string  `json:"speedLabel,omitempty"`
	ETALabel        string  `json:"etaLabel,omitempty"`

	Status domain.DownloadStatus `json:"status,omitempty"`
	Error  string                `json:"error,omitempty"`
}

type progressPayload struct {
	Type            Type    `json:"type"`
	TaskID          int64   `json:"taskId"`
	Percent         float64 `json:"percent"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes"`
	SpeedLabel      string  `json:"speedLabel"`
	ETALabel        string  `json:"etaLabel"`
}

type statusPayload struct {
	Type   Type                  `json:"type"`
	TaskID int64                 `json:"taskId"`
	Status domain.DownloadStatus `json:"status"`
	Error  string                `json:"error"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeProgress:
		return json.Marshal(progressPayload{
			Type:            e.Type,
			TaskID:          e.TaskID,
			Percent:         e.Percent,
			DownloadedBytes: e.DownloadedBytes,
			TotalBytes:      e.TotalBytes,
			SpeedLabel:      e.SpeedLabel,
			ETALabel:        e.ETALabel,
		})
	case TypeStatus:
		return json.Marshal(statusPayload{Type: e.Type, TaskID: e.TaskID, Status: e.Status, Error: e.Error})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func ProgressEvent(taskID int64, p progress.Progress) Event {
	return Event{
		Type:            TypeProgress,
		TaskID:          taskID,
		Percent:         p.Percent,
		DownloadedBytes: p.DownloadedBytes,
		TotalBytes:      p.TotalBytes,
		SpeedLabel:      p.SpeedLabel,
		ETALabel:        p.ETALabel,
	}
}

func StatusEvent(taskID int64, status domain.DownloadStatus, errMsg string) Event {
	return Event{
		Type:   TypeStatus,
		TaskID: taskID,
		Status: status,
		Error:  errMsg,
	}
}

const defaultBuffer = 64

// Broker delivers events to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses events until it catches up.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *logrus.Logger
}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	taskID int64
	broker *Broker
	once   sync.Once
}

func NewBroker(logger *logrus.Logger) *Broker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: defaultBuffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for one task, or for every task when
// taskID is zero.
func (b *Broker) Subscribe(taskID int64) *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch, taskID: taskID, broker: b}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish implements the downloader's event sink.
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.taskID != 0 && sub.taskID != e.TaskID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.logger.WithField("task_id", e.TaskID).Debugf("dropping %s event for slow subscriber", e.Type)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
		close(s.ch)
	})
}
