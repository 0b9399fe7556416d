package internal

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a raw view over badger rows for manual inspection.
// Rows are listed by key prefix (?prefix=hist:) and rendered through the
// provided mapper. Not meant to be exposed beyond localhost.
func StartDebugServer(db *badger.DB, port int, endpoint string, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "hist:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// DefaultMapper decodes the event-log key layout: hist:{padded ts}:{id} and
// gmsg:{group}:{padded ts}:{id}.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "default",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch {
	case len(parts) == 3 && parts[0] == "hist":
		row.Type = "EVENT"
		row.Namespace = "public/private"
		row.Timestamp = formatPaddedNanos(parts[1])
		row.EntityID = parts[2]
	case len(parts) == 4 && parts[0] == "gmsg":
		row.Type = "EVENT"
		row.Namespace = "group." + parts[1]
		row.Timestamp = formatPaddedNanos(parts[2])
		row.EntityID = parts[3]
	case len(parts) >= 2:
		row.Namespace = parts[0]
		row.EntityID = parts[len(parts)-1]
	}
	return row
}

func formatPaddedNanos(s string) string {
	tsNano, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return "--:--:--"
	}
	return time.Unix(0, tsNano).Format("15:04:05")
}
