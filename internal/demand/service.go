package demand

import (
	"fmt"
	"log"

	"alertbot-systemv1/internal/model"
)

// Service coordinates the demand store with the in-memory count cache.
// Every successful store mutation adjusts the cache so quota checks
// stay cheap and never hit the database.
type Service struct {
	store  model.DemandStore
	counts *Counts
}

// NewService wires a store to a count cache.
func NewService(store model.DemandStore, counts *Counts) *Service {
	return &Service{store: store, counts: counts}
}

// Counts exposes the cache for quota checks by the command layer.
func (s *Service) Counts() *Counts { return s.counts }

// Store exposes the underlying store for read-only queries.
func (s *Service) Store() model.DemandStore { return s.store }

// Reload rebuilds the count cache from the store. Must run at startup
// before any quota decision.
func (s *Service) Reload() error {
	counts, err := s.store.DemandCountsByChat()
	if err != nil {
		return fmt.Errorf("reload demand counts: %w", err)
	}
	s.counts.Reload(counts)
	log.Printf("[demand] loaded counts for %d chats", len(counts))
	return nil
}

// Insert registers the chat, checks the quota against the cache, and
// persists the demand. On success the chat's count is bumped. A
// duplicate is passed through as model.ErrDuplicate for the caller to
// present as "already exists".
func (s *Service) Insert(d model.Demand) error {
	if err := s.counts.CheckQuota(d.ChatID); err != nil {
		return err
	}
	if err := s.store.InsertChat(d.ChatID); err != nil {
		log.Printf("[demand] chat registration for %d: %v", d.ChatID, err)
	}
	if err := s.store.Insert(d); err != nil {
		return err
	}
	s.counts.Increase(d.ChatID)
	return nil
}

// Delete removes the demand matching d's identity and lowers the
// chat's cached count.
func (s *Service) Delete(d model.Demand) error {
	if err := s.store.DeleteByIdentity(d); err != nil {
		return err
	}
	s.counts.Decrease(d.ChatID)
	return nil
}

// DeleteByCompositeID decodes the identity token and deletes the
// matching demand.
func (s *Service) DeleteByCompositeID(id string) error {
	d, err := model.ParseCompositeID(id)
	if err != nil {
		return err
	}
	return s.Delete(d)
}

// Free removes every demand for the chat and drops its count entry
// entirely, so a later quota check sees the chat as unknown.
func (s *Service) Free(chatID int64) error {
	if err := s.store.DeleteAllForChat(chatID); err != nil {
		return err
	}
	s.counts.Remove(chatID)
	return nil
}
