package store

import (
	"context"

	"ticketing-service/internal/models"
)

// CreateTicket inserts a ticket.
func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if s.db == nil {
		return ErrUnavailable
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO tickets (id, event_id, name, email, phone, status, checked_in, checked_in_at,
			token, token_generation, provider_order_id, provider_payment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.EventID, t.Name, t.Email, t.Phone, t.Status, t.CheckedIn, t.CheckedInAt,
		t.Token, t.TokenGeneration, t.ProviderOrderID, t.ProviderPaymentID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return failure("failed to insert ticket", err)
	}
	return nil
}

// FindTicketByID retrieves a ticket by ID.
func (s *Store) FindTicketByID(ctx context.Context, id string) Lookup[models.Ticket] {
	return s.findTicket(ctx, "SELECT * FROM tickets WHERE id = $1", id)
}

// FindTicketByToken retrieves the ticket currently holding token.
func (s *Store) FindTicketByToken(ctx context.Context, token string) Lookup[models.Ticket] {
	return s.findTicket(ctx, "SELECT * FROM tickets WHERE token = $1", token)
}

// FindTicketByOrderID retrieves the ticket created for a gateway order.
func (s *Store) FindTicketByOrderID(ctx context.Context, orderID string) Lookup[models.Ticket] {
	return s.findTicket(ctx, "SELECT * FROM tickets WHERE provider_order_id = $1", orderID)
}

func (s *Store) findTicket(ctx context.Context, query string, arg string) Lookup[models.Ticket] {
	if s.db == nil {
		return Failed[models.Ticket](ErrUnavailable)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var t models.Ticket
	err := s.db.GetContext(ctx, &t, query, arg)
	return lookupResult(&t, err)
}

// UpdateStatus writes the status, token and payment references.
func (s *Store) UpdateStatus(ctx context.Context, t *models.Ticket) error {
	return s.execOne(ctx, `
		UPDATE tickets
		SET status = $1, token = $2, token_generation = $3, provider_order_id = $4,
			provider_payment_id = $5, updated_at = $6
		WHERE id = $7`,
		t.Status, t.Token, t.TokenGeneration, t.ProviderOrderID, t.ProviderPaymentID, t.UpdatedAt, t.ID)
}

// UpdateCheckedIn writes the check-in flag and time. With conditional set
// the row is only written if the stored flag differs from the new one, and
// ErrCheckInConflict reports that another writer got there first.
func (s *Store) UpdateCheckedIn(ctx context.Context, t *models.Ticket, conditional bool) error {
	query := `
		UPDATE tickets
		SET checked_in = $1, checked_in_at = $2, updated_at = $3
		WHERE id = $4`
	args := []interface{}{t.CheckedIn, t.CheckedInAt, t.UpdatedAt, t.ID}
	if conditional {
		query += " AND checked_in <> $1"
	}

	err := s.execOne(ctx, query, args...)
	if err == ErrNotFound && conditional {
		return ErrCheckInConflict
	}
	return err
}

// UpdateHolder writes a transfer: new holder identity and token.
func (s *Store) UpdateHolder(ctx context.Context, t *models.Ticket) error {
	return s.execOne(ctx, `
		UPDATE tickets
		SET name = $1, email = $2, phone = $3, token = $4, token_generation = $5, updated_at = $6
		WHERE id = $7`,
		t.Name, t.Email, t.Phone, t.Token, t.TokenGeneration, t.UpdatedAt, t.ID)
}

func (s *Store) execOne(ctx context.Context, query string, args ...interface{}) error {
	if s.db == nil {
		return ErrUnavailable
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return failure("failed to update ticket", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
