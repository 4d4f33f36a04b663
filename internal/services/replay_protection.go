package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"bookstore-api/pkg/logging"
)

// ReplayProtection rejects gateway callbacks that have already been
// processed. A replayed callback never reaches signature verification or
// the state machine.
type ReplayProtection struct {
	processedCallbacks map[string]time.Time
	mutex              sync.RWMutex
	cleanupInterval    time.Duration
	callbackTTL        time.Duration
	stopCleanup        chan bool
}

// NewReplayProtection creates a replay guard with a background cleaner
func NewReplayProtection() *ReplayProtection {
	rp := &ReplayProtection{
		processedCallbacks: make(map[string]time.Time),
		cleanupInterval:    time.Hour,
		callbackTTL:        time.Hour * 24,
		stopCleanup:        make(chan bool),
	}

	go rp.startCleanupRoutine()

	return rp
}

// IsReplay reports whether this callback was seen before. First sight of
// a callback records it.
func (rp *ReplayProtection) IsReplay(orderID string, timestamp int64) bool {
	if orderID == "" {
		// Without an order ID there is nothing to key on; the
		// signature check still guards the payload.
		return false
	}

	rp.mutex.Lock()
	defer rp.mutex.Unlock()

	callbackID := rp.generateCallbackID(orderID, timestamp)

	if processedTime, exists := rp.processedCallbacks[callbackID]; exists {
		logging.Infof("Replayed callback detected - order: %s, previously processed at: %v", orderID, processedTime)
		return true
	}

	rp.processedCallbacks[callbackID] = time.Now()
	return false
}

// generateCallbackID derives the dedup key for a callback
func (rp *ReplayProtection) generateCallbackID(orderID string, timestamp int64) string {
	data := fmt.Sprintf("%s:%d", orderID, timestamp)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// startCleanupRoutine periodically evicts entries past their TTL
func (rp *ReplayProtection) startCleanupRoutine() {
	ticker := time.NewTicker(rp.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rp.cleanup()
		case <-rp.stopCleanup:
			return
		}
	}
}

// cleanup removes callback records older than the TTL
func (rp *ReplayProtection) cleanup() {
	rp.mutex.Lock()
	defer rp.mutex.Unlock()

	cutoff := time.Now().Add(-rp.callbackTTL)
	removed := 0
	for id, processedAt := range rp.processedCallbacks {
		if processedAt.Before(cutoff) {
			delete(rp.processedCallbacks, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Infof("Replay protection cleanup removed %d expired records", removed)
	}
}

// Stop shuts down the cleanup goroutine
func (rp *ReplayProtection) Stop() {
	close(rp.stopCleanup)
}
