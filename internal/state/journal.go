/*

This file journals committed vault events. Each event is stored under a fresh uuid with its JSON
payload so the API can replay recent activity.

*/

package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/elys-network/clvault/internal/types"
)

// JournalEntry is one journaled event.
type JournalEntry struct {
	JournalID  int64           `json:"journal_id"`
	EventID    string          `json:"event_id"`
	EventName  string          `json:"event_name"`
	RecordedAt time.Time       `json:"recorded_at"`
	Payload    json.RawMessage `json:"payload"`
}

// SaveEvent journals ev and returns its event id.
func SaveEvent(ctx context.Context, ev types.Event) (string, error) {
	if DB == nil {
		return "", ErrDBNotInitialized
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s event: %w", ev.EventName(), err)
	}

	eventID := uuid.NewString()
	_, err = DB.ExecContext(ctx,
		`INSERT INTO event_journal (event_id, event_name, payload) VALUES ($1, $2, $3);`,
		eventID, ev.EventName(), payload)
	if err != nil {
		return "", fmt.Errorf("failed to journal %s event: %w", ev.EventName(), err)
	}
	return eventID, nil
}

// Journal is an event sink that persists every event it receives. Write failures are logged and
// never reach the emitting component.
type Journal struct{}

var _ types.EventSink = Journal{}

func (Journal) Emit(ctx context.Context, ev types.Event) {
	if DB == nil {
		return
	}
	if _, err := SaveEvent(ctx, ev); err != nil {
		log.Error().Err(err).Str("event", ev.EventName()).Msg("Failed to journal event")
	}
}

// GetRecentEvents returns up to limit journaled events, newest first, optionally filtered by name.
func GetRecentEvents(limit int, eventName string) ([]JournalEntry, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT journal_id, event_id, event_name, recorded_at, payload
		FROM event_journal
		WHERE ($1 = '' OR event_name = $1)
		ORDER BY journal_id DESC
		LIMIT $2;`

	rows, err := DB.Query(query, eventName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query event journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var payload []byte
		if err := rows.Scan(&e.JournalID, &e.EventID, &e.EventName, &e.RecordedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event journal: %w", err)
	}
	return entries, nil
}
