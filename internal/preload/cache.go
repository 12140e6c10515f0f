package preload

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/immxrtalbeast/clipguess/internal/extract"
)

var ErrCacheFull = errors.New("preload cache full of preparing rooms")

type SlotState int

const (
	SlotAbsent SlotState = iota
	SlotReady
	SlotFailed
)

// Slot is one round's preload outcome. Ref is the video reference the
// content was extracted from.
type Slot struct {
	State   SlotState
	Ref     string
	Content *extract.Content
}

// Entry holds the preloaded content of one game, one slot per round.
type Entry struct {
	CreatedAt time.Time

	mu    sync.RWMutex
	slots []Slot
}

func NewEntry(rounds int) *Entry {
	return &Entry{
		CreatedAt: time.Now(),
		slots:     make([]Slot, rounds),
	}
}

func (e *Entry) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.slots)
}

func (e *Entry) Store(index int, ref string, content *extract.Content) {
	e.set(index, Slot{State: SlotReady, Ref: ref, Content: content})
}

func (e *Entry) Fail(index int, ref string) {
	e.set(index, Slot{State: SlotFailed, Ref: ref})
}

// Lookup returns the ready content of round index if it was extracted from ref.
func (e *Entry) Lookup(index int, ref string) (*extract.Content, bool) {
	slot := e.Slot(index)
	if slot.State != SlotReady || slot.Ref != ref {
		return nil, false
	}
	return slot.Content, true
}

func (e *Entry) set(index int, slot Slot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.slots) {
		return
	}
	e.slots[index] = slot
}

// Slot returns the slot at index; out of range indexes read as absent.
func (e *Entry) Slot(index int) Slot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index < 0 || index >= len(e.slots) {
		return Slot{}
	}
	return e.slots[index]
}

func (e *Entry) Counts() (ready, failed int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.slots {
		switch s.State {
		case SlotReady:
			ready++
		case SlotFailed:
			failed++
		}
	}
	return ready, failed
}

// Cache is a room-keyed FIFO bounded by capacity. Eviction follows insertion
// order and skips pinned rooms.
type Cache struct {
	capacity int
	log      *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
	pinned  map[string]struct{}
}

func NewCache(capacity int, log *slog.Logger) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		capacity: capacity,
		log:      log,
		entries:  make(map[string]*Entry),
		pinned:   make(map[string]struct{}),
	}
}

// Set inserts or replaces the entry of roomCode and moves it to the tail.
func (c *Cache) Set(roomCode string, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(roomCode, entry)
}

// SetPinned inserts the entry and pins it until Unpin.
func (c *Cache) SetPinned(roomCode string, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.setLocked(roomCode, entry); err != nil {
		return err
	}
	c.pinned[roomCode] = struct{}{}
	return nil
}

func (c *Cache) setLocked(roomCode string, entry *Entry) error {
	const op = "preload.cache.set"

	if _, ok := c.entries[roomCode]; ok {
		_, pinned := c.pinned[roomCode]
		c.removeLocked(roomCode)
		if pinned {
			c.pinned[roomCode] = struct{}{}
		}
	} else if len(c.entries) >= c.capacity {
		victim, ok := c.oldestUnpinnedLocked()
		if !ok {
			return ErrCacheFull
		}
		c.removeLocked(victim)
		c.log.Info("cache evicted room",
			slog.String("op", op),
			slog.String("room", victim),
			slog.Int("max_rooms", c.capacity),
		)
	}

	c.entries[roomCode] = entry
	c.order = append(c.order, roomCode)
	return nil
}

func (c *Cache) oldestUnpinnedLocked() (string, bool) {
	for _, code := range c.order {
		if _, pinned := c.pinned[code]; !pinned {
			return code, true
		}
	}
	return "", false
}

func (c *Cache) Get(roomCode string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[roomCode]
	return entry, ok
}

func (c *Cache) Delete(roomCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(roomCode)
}

func (c *Cache) Unpin(roomCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pinned, roomCode)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Rooms lists tracked rooms oldest first.
func (c *Cache) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

func (c *Cache) removeLocked(roomCode string) {
	delete(c.entries, roomCode)
	delete(c.pinned, roomCode)
	if i := slices.Index(c.order, roomCode); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}
