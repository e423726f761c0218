package listener

import (
	"context"
	"sync"
	"time"

	"detection-service/database"
	"detection-service/websocket"

	"github.com/apex/log"
)

// Listener polls the detections table for newly inserted rows and hands
// them to the WebSocket hub. The ingestion path itself never pushes to the
// hub; dashboards observe inserts only through this feed.
type Listener struct {
	db       *database.DetectionService
	hub      *websocket.Hub
	interval time.Duration

	mu       sync.RWMutex
	lastSeq  int64
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new detection listener.
func New(db *database.DetectionService, hub *websocket.Hub, interval time.Duration) *Listener {
	return &Listener{
		db:       db,
		hub:      hub,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start initializes the cursor to the current head of the table and starts
// the broadcast loop. Rows inserted before startup are never re-broadcast.
func (l *Listener) Start() error {
	lastSeq, err := l.db.GetLatestSeq(context.Background())
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.lastSeq = lastSeq
	l.mu.Unlock()

	log.Infof("Detection listener starting from seq %d", lastSeq)

	l.wg.Add(1)
	go l.broadcastLoop()
	return nil
}

// Stop terminates the broadcast loop and waits for it to finish.
func (l *Listener) Stop() {
	close(l.stopChan)
	l.wg.Wait()
	log.Info("Detection listener stopped")
}

func (l *Listener) broadcastLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			if err := l.processNewDetections(); err != nil {
				log.Errorf("Error processing new detections: %v", err)
			}
		}
	}
}

func (l *Listener) processNewDetections() error {
	l.mu.RLock()
	lastSeq := l.lastSeq
	l.mu.RUnlock()

	detections, err := l.db.GetDetectionsSince(context.Background(), lastSeq)
	if err != nil {
		return err
	}
	if len(detections) == 0 {
		return nil
	}

	l.hub.BroadcastDetections(detections)

	l.mu.Lock()
	l.lastSeq = detections[len(detections)-1].Seq
	l.mu.Unlock()
	return nil
}
