// Package repository provides data persistence implementations for providers, incoming events,
// their actions and outgoing events. Both PostgreSQL and MySQL are supported; every repository
// joins the transaction carried by the context via database.GetTx.
package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// encodeHeaders marshals headers to a JSON object, storing nil as {}.
func encodeHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(headers)
}

func decodeHeaders(data []byte) (map[string]string, error) {
	headers := make(map[string]string)
	if len(data) == 0 {
		return headers, nil
	}
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// encodeDelays stores a retry schedule as a JSON array of whole seconds.
func encodeDelays(delays []time.Duration) ([]byte, error) {
	seconds := make([]int64, 0, len(delays))
	for _, d := range delays {
		seconds = append(seconds, int64(d/time.Second))
	}
	return json.Marshal(seconds)
}

func decodeDelays(data []byte) ([]time.Duration, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var seconds []int64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return nil, err
	}
	delays := make([]time.Duration, 0, len(seconds))
	for _, s := range seconds {
		delays = append(delays, time.Duration(s)*time.Second)
	}
	return delays, nil
}

// uuidBytes converts a UUID for a MySQL BINARY(16) column.
func uuidBytes(id uuid.UUID) []byte {
	b, _ := id.MarshalBinary()
	return b
}

// uuidFromBytes converts a MySQL BINARY(16) value back to a UUID.
func uuidFromBytes(b []byte) (uuid.UUID, error) {
	var id uuid.UUID
	if err := id.UnmarshalBinary(b); err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid bytes: %w", err)
	}
	return id, nil
}

// utcPtr normalizes an optional timestamp to UTC for MySQL DATETIME columns.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// whereClause accumulates AND conditions with driver-specific placeholders.
type whereClause struct {
	conditions []string
	args       []any
	numbered   bool
}

func (w *whereClause) add(column string, value any) {
	w.args = append(w.args, value)
	w.conditions = append(w.conditions, column+" = "+w.placeholder(len(w.args)))
}

func (w *whereClause) placeholder(n int) string {
	if w.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (w *whereClause) next() string {
	return w.placeholder(len(w.args) + 1)
}

func (w *whereClause) String() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}
