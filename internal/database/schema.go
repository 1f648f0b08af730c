package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"event-ticketing/internal/models"
)

// CreateSchema builds the tables straight from the bun models. Production schemas come from the SQL
// migrations; this path serves SQLite-backed tests and local scratch databases.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	steps := []struct {
		model any
		fks   []string
	}{
		{model: (*models.User)(nil)},
		{
			model: (*models.Event)(nil),
			fks:   []string{`("organizer_id") REFERENCES "users" ("id") ON DELETE RESTRICT`},
		},
		{
			model: (*models.TicketType)(nil),
			fks:   []string{`("event_id") REFERENCES "events" ("id") ON DELETE CASCADE`},
		},
		{
			model: (*models.Ticket)(nil),
			fks: []string{
				`("event_id") REFERENCES "events" ("id") ON DELETE RESTRICT`,
				`("user_id") REFERENCES "users" ("id") ON DELETE RESTRICT`,
				`("ticket_type_id") REFERENCES "ticket_types" ("id") ON DELETE RESTRICT`,
			},
		},
	}

	for _, step := range steps {
		q := db.NewCreateTable().Model(step.model).IfNotExists()
		for _, fk := range step.fks {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", step.model, err)
		}
	}
	return nil
}
