// Package memory is a process-local MessageStore for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

type Store struct {
	mu        sync.RWMutex
	seq       int64
	byChannel map[domain.ChannelKey][]domain.Message
	index     map[string]domain.ChannelKey
}

func New() *Store {
	return &Store{
		byChannel: make(map[domain.ChannelKey][]domain.Message),
		index:     make(map[string]domain.ChannelKey),
	}
}

func (s *Store) SaveBatch(ctx context.Context, msgs []domain.Message) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		if stored, ok := s.lookup(m.ID); ok {
			out[i] = stored
			continue
		}
		s.seq++
		m.Seq = s.seq
		s.byChannel[m.ChannelKey] = append(s.byChannel[m.ChannelKey], m)
		s.index[m.ID] = m.ChannelKey
		out[i] = m
	}
	return out, nil
}

func (s *Store) lookup(id string) (domain.Message, bool) {
	key, ok := s.index[id]
	if !ok {
		return domain.Message{}, false
	}
	for _, m := range s.byChannel[key] {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

func (s *Store) FindByChannel(_ context.Context, key domain.ChannelKey) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.byChannel[key]...), nil
}

func (s *Store) DeleteByID(_ context.Context, key domain.ChannelKey, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.index[id]; !ok || stored != key {
		return false, nil
	}
	delete(s.index, id)
	msgs := s.byChannel[key]
	for i := range msgs {
		if msgs[i].ID == id {
			s.byChannel[key] = append(msgs[:i:i], msgs[i+1:]...)
			break
		}
	}
	if len(s.byChannel[key]) == 0 {
		delete(s.byChannel, key)
	}
	return true, nil
}

func (s *Store) Close() error { return nil }
