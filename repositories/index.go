package repositories

import (
	"bananachat/domain"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"
)

// MessageIndex mirrors persisted CHAT events into a Bluge full-text index.
// Indexing is best-effort and happens after the durable append; the Badger
// log stays the source of truth.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// SearchHit is one ranked full-text match.
type SearchHit struct {
	EventID domain.EventID
	Sender  string
	Content string
	GroupID domain.GroupID
	Score   float64
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

func docID(id domain.EventID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Index upserts the event document, so edits re-index under the same id.
func (m *MessageIndex) Index(e domain.ChatEvent) error {
	doc := bluge.NewDocument(docID(e.ID)).
		AddField(bluge.NewTextField("content", e.Content).StoreValue()).
		AddField(bluge.NewKeywordField("sender", e.Sender).StoreValue()).
		AddField(bluge.NewKeywordField("group", strconv.FormatInt(int64(e.GroupID), 10)).StoreValue()).
		AddField(bluge.NewDateTimeField("at", e.Timestamp))

	return m.writer.Update(doc.ID(), doc)
}

func (m *MessageIndex) Remove(id domain.EventID) error {
	return m.writer.Delete(bluge.Identifier(docID(id)))
}

// Search runs a ranked match query over message content. A non-zero groupID
// restricts results to that group's topic.
func (m *MessageIndex) Search(ctx context.Context, term string, groupID domain.GroupID, limit int) ([]SearchHit, error) {
	reader, err := m.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			m.log.Warn("Closing index reader failed", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(term).SetField("content"))
	if groupID != 0 {
		query.AddMust(bluge.NewTermQuery(strconv.FormatInt(int64(groupID), 10)).SetField("group"))
	}

	request := bluge.NewTopNSearch(limit, query)
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := SearchHit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := strconv.ParseUint(string(value), 10, 64); parseErr == nil {
					hit.EventID = domain.EventID(id)
				}
			case "sender":
				hit.Sender = string(value)
			case "content":
				hit.Content = string(value)
			case "group":
				if gid, parseErr := strconv.ParseInt(string(value), 10, 64); parseErr == nil {
					hit.GroupID = domain.GroupID(gid)
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
