package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/logger"
)

// EventRepo persists execution events. Nil repo means in-memory only.
type EventRepo interface {
	Insert(ctx context.Context, ev *model.ExecutionEvent) error
	List(ctx context.Context, tenantID string, limit int) ([]*model.ExecutionEvent, error)
}

// EventService records one ExecutionEvent per completed gateway
// operation: an append-only jsonl file plus an in-memory ring for the
// executions endpoint, fanned out to websocket subscribers. Emission
// never blocks the operation that produced the event.
type EventService struct {
	evChan  chan *model.ExecutionEvent
	logFile *os.File
	buffer  *eventBuffer
	repo    EventRepo

	subMu sync.Mutex
	subs  map[chan *model.ExecutionEvent]struct{}

	closeMu sync.RWMutex
	closed  bool
}

func NewEventService(logDir string, repo EventRepo) (*EventService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	// daily file rotation
	filename := filepath.Join(logDir, "executions-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	svc := &EventService{
		evChan:  make(chan *model.ExecutionEvent, 1000),
		logFile: f,
		buffer:  newEventBuffer(1000),
		repo:    repo,
		subs:    make(map[chan *model.ExecutionEvent]struct{}),
	}

	go svc.process()

	return svc, nil
}

// Emit queues an event. If the buffer is full the event is dropped so
// the execution path never stalls on bookkeeping.
func (s *EventService) Emit(ev model.ExecutionEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	entry := &ev
	if s.buffer != nil {
		s.buffer.Add(entry)
	}
	s.broadcast(entry)
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.evChan <- entry:
	default:
		logger.Warn("execution event buffer full, dropping event", "kind", string(ev.Kind))
	}
}

// List returns the most recent events, newest first. Falls back to the
// ring buffer when the repo is unavailable.
func (s *EventService) List(ctx context.Context, tenantID string, limit int) ([]*model.ExecutionEvent, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, tenantID, limit)
		if err == nil {
			return records, nil
		}
		logger.LogError(ctx, err, "event list from repo failed, serving buffer")
	}
	if s.buffer == nil {
		return nil, nil
	}
	return s.buffer.List(tenantID, limit), nil
}

// Subscribe registers a live feed. The returned channel drops events
// when the subscriber lags. Call the cancel func when done.
func (s *EventService) Subscribe() (<-chan *model.ExecutionEvent, func()) {
	ch := make(chan *model.ExecutionEvent, 64)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *EventService) broadcast(ev *model.ExecutionEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber, skip
		}
	}
}

func (s *EventService) process() {
	encoder := json.NewEncoder(s.logFile)
	for ev := range s.evChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), ev); err != nil {
				logger.LogError(context.Background(), err, "failed to persist execution event")
			}
		}
		if err := encoder.Encode(ev); err != nil {
			logger.LogError(context.Background(), err, "failed to append execution event")
		}
	}
}

func (s *EventService) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.evChan)
	s.closeMu.Unlock()
	s.logFile.Close()
}

type eventBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.ExecutionEvent
	nextIndex int
}

func newEventBuffer(maxSize int) *eventBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &eventBuffer{
		maxSize: maxSize,
		records: make([]*model.ExecutionEvent, 0, maxSize),
	}
}

func (b *eventBuffer) Add(ev *model.ExecutionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, ev)
		return
	}
	b.records[b.nextIndex] = ev
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *eventBuffer) List(tenantID string, limit int) []*model.ExecutionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.ExecutionEvent, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		ev := b.records[idx]
		if ev == nil {
			continue
		}
		if tenantID != "" && ev.TenantID != tenantID {
			continue
		}
		results = append(results, ev)
		if len(results) >= limit {
			break
		}
	}
	return results
}
