package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bananachat/contract"
	"bananachat/domain"
	"bananachat/errors"
	"bananachat/repositories"
)

type IHistoryService interface {
	History() ([]domain.ChatEvent, error)
	Recent(page, size int) ([]domain.ChatEvent, error)
	PublicHistory() ([]domain.ChatEvent, error)
	PrivateHistory(requester, other string) ([]domain.ChatEvent, error)

	GroupHistory(requester string, groupID domain.GroupID) ([]domain.ChatEvent, error)
	RecentGroupMessages(requester string, groupID domain.GroupID, limit int) ([]domain.ChatEvent, error)
	GroupMessagesSince(requester string, groupID domain.GroupID, since time.Time) ([]domain.ChatEvent, error)
	SearchGroupMessages(requester string, groupID domain.GroupID, term string) ([]domain.ChatEvent, error)
	CountGroupMessages(requester string, groupID domain.GroupID) (int64, error)

	SearchMessages(ctx context.Context, query string, groupID domain.GroupID, limit int) ([]repositories.SearchHit, error)
}

// HistoryService is the read side of the event log. Group-scoped reads are
// gated on membership; public and private reads are not. Deactivated groups
// keep their history readable by their (former) members.
type HistoryService struct {
	events     contract.IEventLog
	membership contract.IMembership
	index      *repositories.MessageIndex // optional
	log        *slog.Logger
}

func NewHistoryService(events contract.IEventLog, membership contract.IMembership, index *repositories.MessageIndex, log *slog.Logger) *HistoryService {
	return &HistoryService{events: events, membership: membership, index: index, log: log}
}

// History returns every persisted event, oldest first.
func (s *HistoryService) History() ([]domain.ChatEvent, error) {
	return s.events.History()
}

func (s *HistoryService) Recent(page, size int) ([]domain.ChatEvent, error) {
	if page < 0 || size <= 0 {
		return nil, fmt.Errorf("%w: page=%d size=%d", errors.ErrInvalidArgument, page, size)
	}
	return s.events.Recent(page, size)
}

func (s *HistoryService) PublicHistory() ([]domain.ChatEvent, error) {
	return s.events.PublicHistory()
}

// PrivateHistory returns the conversation between the requester and the
// other party, both directions, oldest first.
func (s *HistoryService) PrivateHistory(requester, other string) ([]domain.ChatEvent, error) {
	if other == "" {
		return nil, errors.ErrMissingRecipient
	}
	return s.events.PrivateHistory(requester, other)
}

func (s *HistoryService) GroupHistory(requester string, groupID domain.GroupID) ([]domain.ChatEvent, error) {
	if err := s.requireMember(requester, groupID); err != nil {
		return nil, err
	}
	return s.events.GroupHistory(groupID)
}

func (s *HistoryService) RecentGroupMessages(requester string, groupID domain.GroupID, limit int) ([]domain.ChatEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit=%d", errors.ErrInvalidArgument, limit)
	}
	if err := s.requireMember(requester, groupID); err != nil {
		return nil, err
	}
	return s.events.RecentGroupMessages(groupID, limit)
}

func (s *HistoryService) GroupMessagesSince(requester string, groupID domain.GroupID, since time.Time) ([]domain.ChatEvent, error) {
	if err := s.requireMember(requester, groupID); err != nil {
		return nil, err
	}
	return s.events.GroupMessagesSince(groupID, since)
}

func (s *HistoryService) SearchGroupMessages(requester string, groupID domain.GroupID, term string) ([]domain.ChatEvent, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: empty search term", errors.ErrInvalidArgument)
	}
	if err := s.requireMember(requester, groupID); err != nil {
		return nil, err
	}
	return s.events.SearchGroupMessages(groupID, term)
}

func (s *HistoryService) CountGroupMessages(requester string, groupID domain.GroupID) (int64, error) {
	if err := s.requireMember(requester, groupID); err != nil {
		return 0, err
	}
	return s.events.CountGroupMessages(groupID)
}

// SearchMessages runs a ranked full-text query over indexed chat content.
// Pass groupID 0 to search across all destinations.
func (s *HistoryService) SearchMessages(ctx context.Context, query string, groupID domain.GroupID, limit int) ([]repositories.SearchHit, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: full-text index not configured", errors.ErrInvalidArgument)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", errors.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 20
	}
	return s.index.Search(ctx, query, groupID, limit)
}

// requireMember maps a failed membership check to the same error whether the
// group is missing or the requester is an outsider, so history endpoints
// don't leak group existence.
func (s *HistoryService) requireMember(requester string, groupID domain.GroupID) error {
	if s.membership.IsMember(groupID, requester) {
		return nil
	}
	return errors.ErrForbidden
}
