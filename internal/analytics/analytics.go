package analytics

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldwise/farmhand/internal/advisor"
)

// Journal appends every answered query as a JSON line to a rotating file so
// field trials can be replayed without database access. Postgres stays the
// queryable record; this file is the offline copy.
type Journal struct {
	mu     sync.Mutex
	out    io.WriteCloser
	logger *log.Logger
}

var _ advisor.Journal = (*Journal)(nil)

type record struct {
	Time           time.Time `json:"time"`
	ConversationID string    `json:"conversation_id"`
	Query          string    `json:"query"`
	Strategy       string    `json:"strategy"`
	DocumentIDs    []string  `json:"document_ids,omitempty"`
	DatasetIDs     []string  `json:"dataset_ids,omitempty"`
	WebLookup      bool      `json:"web_lookup"`
}

// NewJournal opens a rotating journal at path. The file is created lazily on
// the first write.
func NewJournal(path string) *Journal {
	return &Journal{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    15, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		},
		logger: log.New(log.Writer(), "[ANALYTICS] ", log.LstdFlags),
	}
}

// Record appends one event. Failures are logged and swallowed; the journal
// must never fail a request.
func (j *Journal) Record(ev advisor.QueryEvent) {
	line, err := json.Marshal(record{
		Time:           time.Now().UTC(),
		ConversationID: ev.ConversationID,
		Query:          ev.Query,
		Strategy:       string(ev.Strategy),
		DocumentIDs:    ev.DocumentIDs,
		DatasetIDs:     ev.DatasetIDs,
		WebLookup:      ev.WebLookup,
	})
	if err != nil {
		j.logger.Printf("marshal event: %v", err)
		return
	}
	line = append(line, '\n')

	j.mu.Lock()
	_, err = j.out.Write(line)
	j.mu.Unlock()
	if err != nil {
		j.logger.Printf("write event: %v", err)
	}
}

func (j *Journal) Close() error {
	return j.out.Close()
}
