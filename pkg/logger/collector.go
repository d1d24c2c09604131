package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated log batches, typically to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries before an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry counts repeats of one (level, message, fields, caller).
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates error lines so a failing sink produces one
// published entry per flush instead of one per asset.
type LogCollector struct {
	config *CollectionConfig
	logMap map[string]*AggregatedLogEntry
	mutex  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	ctx, cancel := context.WithCancel(context.Background())

	collector := &LogCollector{
		config: config,
		logMap: make(map[string]*AggregatedLogEntry),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}

	collector.wg.Add(1)
	go collector.periodicFlush()

	return collector
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := d.now()
	key := d.generateKey(level, message, fields, caller)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if entry, exists := d.logMap[key]; exists {
		entry.Count++
		entry.LastSeen = now
	} else {
		d.logMap[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(d.logMap) >= d.config.CountThreshold {
		d.flushLocked()
	}
}

// Pending returns the number of distinct entries waiting for the next flush.
func (d *LogCollector) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.logMap)
}

func (d *LogCollector) generateKey(level, message string, fields map[string]interface{}, caller string) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{
		Level:   level,
		Message: message,
		Fields:  fields,
		Caller:  caller,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

func (d *LogCollector) periodicFlush() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mutex.Lock()
			d.flushLocked()
			d.mutex.Unlock()
		case <-d.ctx.Done():
			d.mutex.Lock()
			logs := d.drainLocked()
			d.mutex.Unlock()
			// final batch is sent synchronously so Close does not lose it
			d.send(logs)
			return
		}
	}
}

// flushLocked must be called with mutex held.
func (d *LogCollector) flushLocked() {
	logs := d.drainLocked()
	if len(logs) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(logs)
	}()
}

func (d *LogCollector) drainLocked() []AggregatedLogEntry {
	if len(d.logMap) == 0 {
		return nil
	}
	logs := make([]AggregatedLogEntry, 0, len(d.logMap))
	for _, entry := range d.logMap {
		logs = append(logs, *entry)
	}
	d.logMap = make(map[string]*AggregatedLogEntry)

	// noisiest first
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].Count != logs[j].Count {
			return logs[i].Count > logs[j].Count
		}
		return logs[i].FirstSeen.Before(logs[j].FirstSeen)
	})
	return logs
}

func (d *LogCollector) send(logs []AggregatedLogEntry) {
	if len(logs) == 0 || d.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, logs); err != nil {
		fmt.Fprintf(os.Stderr, "failed to send aggregated logs: %v\n", err)
	}
}

func (d *LogCollector) Close() {
	d.cancel()
	d.wg.Wait()
}
