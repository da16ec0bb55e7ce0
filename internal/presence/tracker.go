// Package presence tracks who is online in each chat room, mirrors that state
// into Redis and the database, and coalesces change notifications.
package presence

import (
	"context"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"pawhaven/internal/cache"
	"pawhaven/internal/models"
	"pawhaven/internal/observability"
	"pawhaven/internal/repository"

	"github.com/redis/go-redis/v9"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultStaleMultiple     = 3
	defaultDebounceInterval  = 500 * time.Millisecond
	defaultSummaryInterval   = 2 * time.Minute
)

// TrackerConfig controls heartbeat staleness, notification debouncing, and
// the activity summary cadence.
type TrackerConfig struct {
	HeartbeatInterval time.Duration
	StaleMultiple     int
	DebounceInterval  time.Duration
	SummaryInterval   time.Duration

	// OnPresenceChanged fires at most once per debounce window per room,
	// with the coalesced online user list.
	OnPresenceChanged func(roomID uint, online []uint)
	// OnActivitySummary fires every summary interval for rooms with net
	// activity. A user who joined and left within the window appears in
	// neither list.
	OnActivitySummary func(roomID uint, joined, left []uint)
}

type roomState struct {
	// lastSeen holds the most recent heartbeat per locally-known online user.
	lastSeen map[uint]time.Time

	debounce *time.Timer

	// summaryEvents is last-event-wins: "join" and "leave" for the same
	// user cancel out within one summary window.
	summaryEvents map[uint]string
}

// Tracker is the room presence engine. All state transitions flow through
// Heartbeat and Leave; reads go through ListOnline.
type Tracker struct {
	rdb  *redis.Client
	repo repository.PresenceRepository

	mu    sync.Mutex
	rooms map[uint]*roomState

	heartbeatInterval time.Duration
	staleness         time.Duration
	debounceInterval  time.Duration
	summaryInterval   time.Duration

	onPresenceChanged func(roomID uint, online []uint)
	onActivitySummary func(roomID uint, joined, left []uint)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTracker creates a tracker and starts its summary loop.
func NewTracker(rdb *redis.Client, repo repository.PresenceRepository, cfg TrackerConfig) *Tracker {
	t := &Tracker{
		rdb:               rdb,
		repo:              repo,
		rooms:             make(map[uint]*roomState),
		heartbeatInterval: defaultHeartbeatInterval,
		debounceInterval:  defaultDebounceInterval,
		summaryInterval:   defaultSummaryInterval,
		onPresenceChanged: cfg.OnPresenceChanged,
		onActivitySummary: cfg.OnActivitySummary,
		stopCh:            make(chan struct{}),
	}

	if cfg.HeartbeatInterval > 0 {
		t.heartbeatInterval = cfg.HeartbeatInterval
	}
	staleMultiple := defaultStaleMultiple
	if cfg.StaleMultiple >= 2 {
		staleMultiple = cfg.StaleMultiple
	}
	t.staleness = time.Duration(staleMultiple) * t.heartbeatInterval
	if cfg.DebounceInterval > 0 {
		t.debounceInterval = cfg.DebounceInterval
	}
	if cfg.SummaryInterval > 0 {
		t.summaryInterval = cfg.SummaryInterval
	}

	go t.summaryLoop()
	return t
}

// Staleness returns the window after which an unrefreshed heartbeat counts as
// offline.
func (t *Tracker) Staleness() time.Duration {
	return t.staleness
}

// Stop shuts down the summary loop and cancels pending debounce timers.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.mu.Lock()
		for _, room := range t.rooms {
			if room.debounce != nil {
				room.debounce.Stop()
			}
		}
		t.mu.Unlock()
	})
}

func (t *Tracker) room(roomID uint) *roomState {
	room, ok := t.rooms[roomID]
	if !ok {
		room = &roomState{
			lastSeen:      make(map[uint]time.Time),
			summaryEvents: make(map[uint]string),
		}
		t.rooms[roomID] = room
	}
	return room
}

// Heartbeat records activity for the user in the room. The first heartbeat
// after absence is a join; later ones only refresh the staleness clock.
func (t *Tracker) Heartbeat(ctx context.Context, userID, roomID uint) {
	now := time.Now()

	t.mu.Lock()
	room := t.room(roomID)
	_, wasOnline := room.lastSeen[userID]
	if wasOnline && now.Sub(room.lastSeen[userID]) > t.staleness {
		wasOnline = false
	}
	room.lastSeen[userID] = now
	if !wasOnline {
		t.recordEventLocked(room, userID, "join")
		t.scheduleBroadcastLocked(roomID, room)
	}
	t.updateOnlineGaugeLocked(roomID, room)
	t.mu.Unlock()

	t.touchRedis(ctx, userID, roomID)

	if t.repo != nil {
		err := t.repo.Upsert(ctx, &models.PresenceRecord{
			UserID:     userID,
			RoomID:     roomID,
			LastSeenAt: now,
			IsOnline:   true,
		})
		if err != nil {
			log.Printf("presence upsert failed for user %d room %d: %v", userID, roomID, err)
		}
	}

}

// Leave removes the user from the room immediately.
func (t *Tracker) Leave(ctx context.Context, userID, roomID uint) {
	now := time.Now()

	t.mu.Lock()
	room := t.room(roomID)
	_, wasOnline := room.lastSeen[userID]
	delete(room.lastSeen, userID)
	if wasOnline {
		t.recordEventLocked(room, userID, "leave")
		t.scheduleBroadcastLocked(roomID, room)
	}
	t.updateOnlineGaugeLocked(roomID, room)
	t.mu.Unlock()

	if !wasOnline {
		return
	}

	if t.rdb != nil {
		uid := strconv.FormatUint(uint64(userID), 10)
		if err := t.rdb.SRem(ctx, cache.RoomOnlineKey(roomID), uid).Err(); err != nil {
			log.Printf("presence SREM failed for user %d room %d: %v", userID, roomID, err)
		}
		_ = t.rdb.Del(ctx, cache.LastSeenKey(roomID, userID)).Err()
	}

	if t.repo != nil {
		if err := t.repo.SetOffline(ctx, userID, roomID, now); err != nil {
			log.Printf("presence set-offline failed for user %d room %d: %v", userID, roomID, err)
		}
	}
}

// ListOnline returns the user IDs currently online in the room: Redis members
// with a live last-seen key, unioned with fresh local heartbeats as a safety
// net when Redis is unavailable.
func (t *Tracker) ListOnline(ctx context.Context, roomID uint) []uint {
	local := t.localOnline(roomID)

	if t.rdb == nil {
		return local
	}

	members, err := t.rdb.SMembers(ctx, cache.RoomOnlineKey(roomID)).Result()
	if err != nil {
		return local
	}

	seen := make(map[uint]struct{}, len(members)+len(local))
	result := make([]uint, 0, len(members)+len(local))

	for _, raw := range members {
		id64, parseErr := strconv.ParseUint(raw, 10, 32)
		if parseErr != nil {
			continue
		}
		userID := uint(id64)
		exists, existsErr := t.rdb.Exists(ctx, cache.LastSeenKey(roomID, userID)).Result()
		if existsErr != nil {
			continue
		}
		if exists == 0 {
			// Stale member; clean it up as we go.
			_ = t.rdb.SRem(ctx, cache.RoomOnlineKey(roomID), raw).Err()
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		result = append(result, userID)
	}

	for _, userID := range local {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		result = append(result, userID)
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// updateOnlineGaugeLocked sets the room's online-users gauge from the fresh
// entries in lastSeen, pruning aged-out ones as it counts. Recomputing from
// the set keeps the gauge honest for users who age out without an explicit
// leave; paired inc/dec would drift upward.
func (t *Tracker) updateOnlineGaugeLocked(roomID uint, room *roomState) {
	now := time.Now()
	fresh := 0
	for userID, last := range room.lastSeen {
		if now.Sub(last) > t.staleness {
			delete(room.lastSeen, userID)
			continue
		}
		fresh++
	}
	observability.PresenceOnlineUsers.
		WithLabelValues(strconv.FormatUint(uint64(roomID), 10)).
		Set(float64(fresh))
}

func (t *Tracker) localOnline(roomID uint) []uint {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]uint, 0, len(room.lastSeen))
	for userID, last := range room.lastSeen {
		if now.Sub(last) <= t.staleness {
			ids = append(ids, userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) touchRedis(ctx context.Context, userID, roomID uint) {
	if t.rdb == nil {
		return
	}
	uid := strconv.FormatUint(uint64(userID), 10)
	if err := t.rdb.SAdd(ctx, cache.RoomOnlineKey(roomID), uid).Err(); err != nil {
		log.Printf("presence SADD failed for user %d room %d: %v", userID, roomID, err)
	}
	err := t.rdb.SetEx(ctx, cache.LastSeenKey(roomID, userID),
		strconv.FormatInt(time.Now().Unix(), 10), t.staleness).Err()
	if err != nil {
		log.Printf("presence SETEX failed for user %d room %d: %v", userID, roomID, err)
	}
}

// recordEventLocked applies last-event-wins: opposite events within the same
// summary window cancel each other.
func (t *Tracker) recordEventLocked(room *roomState, userID uint, event string) {
	prev, ok := room.summaryEvents[userID]
	if ok && prev != event {
		delete(room.summaryEvents, userID)
		return
	}
	room.summaryEvents[userID] = event
}

// scheduleBroadcastLocked arms the room's debounce timer unless one is
// already pending, coalescing bursts of churn into one notification.
func (t *Tracker) scheduleBroadcastLocked(roomID uint, room *roomState) {
	if t.onPresenceChanged == nil {
		return
	}
	if room.debounce != nil {
		return
	}
	room.debounce = time.AfterFunc(t.debounceInterval, func() {
		t.mu.Lock()
		if r, ok := t.rooms[roomID]; ok {
			r.debounce = nil
		}
		t.mu.Unlock()

		t.onPresenceChanged(roomID, t.ListOnline(context.Background(), roomID))
	})
}

func (t *Tracker) summaryLoop() {
	ticker := time.NewTicker(t.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.flushSummaries()
		}
	}
}

func (t *Tracker) flushSummaries() {
	type summary struct {
		roomID uint
		joined []uint
		left   []uint
	}

	var out []summary

	t.mu.Lock()
	for roomID, room := range t.rooms {
		if len(room.summaryEvents) == 0 {
			continue
		}
		s := summary{roomID: roomID}
		for userID, event := range room.summaryEvents {
			if event == "join" {
				s.joined = append(s.joined, userID)
			} else {
				s.left = append(s.left, userID)
			}
		}
		room.summaryEvents = make(map[uint]string)
		sort.Slice(s.joined, func(i, j int) bool { return s.joined[i] < s.joined[j] })
		sort.Slice(s.left, func(i, j int) bool { return s.left[i] < s.left[j] })
		out = append(out, s)
	}
	cb := t.onActivitySummary
	t.mu.Unlock()

	if cb == nil {
		return
	}
	for _, s := range out {
		cb(s.roomID, s.joined, s.left)
	}
}

// FlushSummariesNow forces a summary emission. Used by tests.
func (t *Tracker) FlushSummariesNow() {
	t.flushSummaries()
}
