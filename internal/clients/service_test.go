package clients

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibms-erp/ibms/internal/shared"
)

type memoryClientRepo struct {
	clients  map[int64]*Client
	invoiced map[int64]bool
	nextID   int64
}

func newMemoryClientRepo() *memoryClientRepo {
	return &memoryClientRepo{clients: make(map[int64]*Client), invoiced: make(map[int64]bool)}
}

func (r *memoryClientRepo) List(ctx context.Context, search string, limit, offset int) ([]Client, int, error) {
	var out []Client
	for _, c := range r.clients {
		if search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(search)) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *memoryClientRepo) All(ctx context.Context) ([]Client, error) {
	out, _, err := r.List(ctx, "", 0, 0)
	return out, err
}

func (r *memoryClientRepo) FindByID(ctx context.Context, id int64) (*Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memoryClientRepo) FindByUserID(ctx context.Context, userID int64) (*Client, error) {
	for _, c := range r.clients {
		if c.UserID != nil && *c.UserID == userID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryClientRepo) Create(ctx context.Context, c Client) (int64, error) {
	for _, existing := range r.clients {
		if existing.Email == c.Email {
			return 0, shared.ErrEmailTaken
		}
	}
	r.nextID++
	c.ID = r.nextID
	r.clients[c.ID] = &c
	return c.ID, nil
}

func (r *memoryClientRepo) Update(ctx context.Context, c Client) error {
	stored, ok := r.clients[c.ID]
	if !ok {
		return shared.ErrNotFound
	}
	*stored = c
	return nil
}

func (r *memoryClientRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.clients[id]; !ok {
		return shared.ErrNotFound
	}
	if r.invoiced[id] {
		return shared.ErrConflict
	}
	delete(r.clients, id)
	return nil
}

var _ Repository = (*memoryClientRepo)(nil)

func newTestClientService() (*Service, *memoryClientRepo) {
	repo := newMemoryClientRepo()
	return NewService(repo, nil, slog.Default()), repo
}

func TestCreateNormalisesFields(t *testing.T) {
	service, repo := newTestClientService()

	created, err := service.Create(context.Background(), 1, ClientInput{
		Name:  "  Acme Corporation  ",
		Email: " Billing@ACME.example ",
		Phone: " +1 555 0100 ",
	})
	require.NoError(t, err)
	require.Equal(t, "Acme Corporation", created.Name)
	require.Equal(t, "billing@acme.example", created.Email)
	require.Equal(t, "+1 555 0100", created.Phone)
	require.Contains(t, repo.clients, created.ID)
}

func TestCreateDuplicateEmail(t *testing.T) {
	service, _ := newTestClientService()

	_, err := service.Create(context.Background(), 1, ClientInput{Name: "Acme", Email: "billing@acme.example"})
	require.NoError(t, err)
	_, err = service.Create(context.Background(), 1, ClientInput{Name: "Other", Email: "Billing@Acme.example"})
	require.ErrorIs(t, err, shared.ErrEmailTaken)
}

func TestListFiltersBySearch(t *testing.T) {
	service, _ := newTestClientService()
	for _, name := range []string{"Acme Corporation", "Globex Ltd", "Acme Subsidiary"} {
		_, err := service.Create(context.Background(), 1, ClientInput{
			Name:  name,
			Email: strings.ToLower(strings.ReplaceAll(name, " ", "")) + "@example.com",
		})
		require.NoError(t, err)
	}

	items, page, err := service.List(context.Background(), "acme", 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 2, page.Total)

	all, page, err := service.List(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 1, page.TotalPages)
}

func TestForUserResolvesPortalAccount(t *testing.T) {
	service, _ := newTestClientService()
	userID := int64(77)
	created, err := service.Create(context.Background(), 1, ClientInput{
		Name:   "Acme",
		Email:  "billing@acme.example",
		UserID: &userID,
	})
	require.NoError(t, err)

	got, err := service.ForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = service.ForUser(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteKeepsInvoicedClients(t *testing.T) {
	service, repo := newTestClientService()
	created, err := service.Create(context.Background(), 1, ClientInput{Name: "Acme", Email: "billing@acme.example"})
	require.NoError(t, err)

	repo.invoiced[created.ID] = true
	require.ErrorIs(t, service.Delete(context.Background(), 1, created.ID), shared.ErrConflict)

	repo.invoiced[created.ID] = false
	require.NoError(t, service.Delete(context.Background(), 1, created.ID))
	require.NotContains(t, repo.clients, created.ID)

	require.ErrorIs(t, service.Delete(context.Background(), 1, created.ID), shared.ErrNotFound)
}
