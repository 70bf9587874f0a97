package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"haven/internal/chat/models"
	"haven/internal/moderation"
	"haven/pkg/platform/sentinel"
)

// DefaultRooms are seeded when no room list is configured.
func DefaultRooms() []models.Room {
	return []models.Room{
		{ID: "general", Name: "General support"},
		{ID: "anxiety", Name: "Anxiety peer group", Rules: moderation.RoomRules{SlowMode: 10 * time.Second}},
		{ID: "youth", Name: "Youth circle", Rules: moderation.RoomRules{SlowMode: 30 * time.Second, BlockProfanity: true, MaxLength: 500}},
	}
}

type InMemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]models.Room
	messages map[string][]*models.Message
}

func NewInMemoryStore(rooms ...models.Room) *InMemoryStore {
	s := &InMemoryStore{
		rooms:    make(map[string]models.Room, len(rooms)),
		messages: make(map[string][]*models.Message),
	}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *InMemoryStore) FindRoom(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, sentinel.ErrNotFound)
	}
	return &r, nil
}

func (s *InMemoryStore) Append(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return fmt.Errorf("room %s: %w", msg.RoomID, sentinel.ErrNotFound)
	}
	cp := *msg
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], &cp)
	return nil
}

// ListByRoom returns up to limit of the newest messages, oldest first.
func (s *InMemoryStore) ListByRoom(_ context.Context, roomID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*models.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}
