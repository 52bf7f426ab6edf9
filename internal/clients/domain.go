package clients

import "time"

// Client is a billable party. A client may optionally be linked to a login
// account, which scopes that account's portal to the client's own invoices.
type Client struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Address   string
	UserID    *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClientInput carries a validated create/update form.
type ClientInput struct {
	Name    string `validate:"required,min=2,max=160"`
	Email   string `validate:"required,email"`
	Phone   string `validate:"max=40"`
	Address string `validate:"max=500"`
	UserID  *int64
}
