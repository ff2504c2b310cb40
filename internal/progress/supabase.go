package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig carries the connection settings for the hosted tracker.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Table          string
}

// Supabase persists progress rows into a Postgres table through the Supabase
// REST API. Rows are upserted on (subject, chapter) so the table always holds
// the latest state per chapter.
type Supabase struct {
	client *supabase.Client
	table  string
}

var _ Tracker = (*Supabase)(nil)

type progressRow struct {
	Subject         string `json:"subject"`
	Chapter         string `json:"chapter"`
	PercentComplete int    `json:"percent_complete"`
	Completed       bool   `json:"completed"`
	Score           *int   `json:"score,omitempty"`
	LastAccessed    string `json:"last_accessed"`
}

// NewSupabase builds the tracker. The table must have a unique constraint on
// (subject, chapter).
func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("supabase tracker: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	table := cfg.Table
	if table == "" {
		table = "learning_progress"
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase tracker: create client: %w", err)
	}
	return &Supabase{client: client, table: table}, nil
}

func (s *Supabase) Record(_ context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	row := progressRow{
		Subject:         ev.Subject,
		Chapter:         ev.Chapter,
		PercentComplete: ev.PercentComplete,
		Completed:       ev.Completed,
		Score:           ev.Score,
		LastAccessed:    at.UTC().Format(time.RFC3339),
	}
	_, _, err := s.client.From(s.table).
		Insert(row, true, "subject,chapter", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("supabase tracker: record %s/%s: %w", ev.Subject, ev.Chapter, err)
	}
	return nil
}

func (s *Supabase) Last(_ context.Context) (LastSession, bool, error) {
	var rows []progressRow
	_, err := s.client.From(s.table).
		Select("subject,chapter,last_accessed", "", false).
		Order("last_accessed", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return LastSession{}, false, fmt.Errorf("supabase tracker: last session: %w", err)
	}
	if len(rows) == 0 {
		return LastSession{}, false, nil
	}
	at, _ := time.Parse(time.RFC3339, rows[0].LastAccessed)
	return LastSession{Subject: rows[0].Subject, Chapter: rows[0].Chapter, At: at}, true, nil
}
