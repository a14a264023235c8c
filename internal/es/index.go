package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/farm_dashboard/internal/audit"
	"github.com/Skotchmaster/farm_dashboard/internal/events"
	"github.com/Skotchmaster/farm_dashboard/internal/models"
)

const DefaultIndex = "auth_events"

const mapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "type":        {"type": "keyword"},
      "username":    {"type": "keyword"},
      "role":        {"type": "keyword"},
      "reason":      {"type": "text"},
      "remote_ip":   {"type": "keyword"},
      "occurred_at": {"type": "date"}
    }
  }
}`

// EventIndex stores auth events in Elasticsearch and lists them back for the
// admin audit page.
type EventIndex struct {
	ES   *elasticsearch.Client
	Name string
}

func NewEventIndex(client *elasticsearch.Client, name string) *EventIndex {
	if name == "" {
		name = DefaultIndex
	}
	return &EventIndex{ES: client, Name: name}
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (ix *EventIndex) EnsureIndex(ctx context.Context) error {
	res, err := ix.ES.Indices.Exists([]string{ix.Name}, ix.ES.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("index exists: %s", res.Status())
	}

	res, err = ix.ES.Indices.Create(ix.Name,
		ix.ES.Indices.Create.WithContext(ctx),
		ix.ES.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res.Status(), res.Body)
	}
	return nil
}

// Publish indexes the event under its ID, so a redelivered event overwrites
// itself instead of duplicating.
func (ix *EventIndex) Publish(ctx context.Context, e events.Event) error {
	doc := models.AuthEvent{
		EventID:    e.ID,
		Type:       string(e.Type),
		Username:   e.Username,
		Role:       e.Role,
		Reason:     e.Reason,
		RemoteIP:   e.RemoteIP,
		OccurredAt: e.OccurredAt,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	res, err := ix.ES.Index(ix.Name, &buf,
		ix.ES.Index.WithContext(ctx),
		ix.ES.Index.WithDocumentID(e.ID),
	)
	if err != nil {
		return fmt.Errorf("index event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index event", res.Status(), res.Body)
	}
	return nil
}

func (ix *EventIndex) List(ctx context.Context, q audit.Query) ([]models.AuthEvent, error) {
	from, size := q.Window()
	query := map[string]any{"match_all": map[string]any{}}
	if user := q.User(); user != "" {
		query = map[string]any{
			"bool": map[string]any{
				"filter": []any{map[string]any{"term": map[string]any{"username": user}}},
			},
		}
	}
	body := map[string]any{
		"query": query,
		"sort":  []any{map[string]any{"occurred_at": map[string]any{"order": "desc"}}},
		"from":  from,
		"size":  size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	res, err := ix.ES.Search(
		ix.ES.Search.WithContext(ctx),
		ix.ES.Search.WithIndex(ix.Name),
		ix.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("search events", res.Status(), res.Body)
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source models.AuthEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}

	out := make([]models.AuthEvent, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		out[i] = hit.Source
	}
	return out, nil
}

func responseError(op, status string, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 4<<10))
	return fmt.Errorf("%s: %s: %s", op, status, bytes.TrimSpace(b))
}

var _ events.Publisher = (*EventIndex)(nil)
