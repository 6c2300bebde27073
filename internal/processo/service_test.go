package processo

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/entity"
)

type memStore struct {
	mu    sync.Mutex
	items map[int64]entity.Processo
}

func newMemStore() *memStore { return &memStore{items: map[int64]entity.Processo{}} }

func (m *memStore) List(_ context.Context, limit, offset int) ([]entity.Processo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entity.Processo{}
	for _, p := range m.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > len(out) {
		return []entity.Processo{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.Processo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m *memStore) Create(_ context.Context, p *entity.Processo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Numero == p.Numero {
			return &pq.Error{Code: "23505"}
		}
	}
	m.items[p.ID] = *p
	return nil
}

func (m *memStore) Update(_ context.Context, p *entity.Processo) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.ID]; !ok {
		return 0, nil
	}
	m.items[p.ID] = *p
	return 1, nil
}

func (m *memStore) Delete(_ context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return 0, nil
	}
	delete(m.items, id)
	return 1, nil
}

func newTestService() *Service {
	svc := NewService(newMemStore())
	var next int64
	svc.nextID = func() int64 { next++; return next }
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestServiceCreateValidates(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, entity.Payload{Numero: "  ", Assunto: "x"})
	assert.ErrorIs(t, err, ErrInvalidProcesso)

	_, err = svc.Create(ctx, entity.Payload{Numero: "PRC-1", Assunto: "x", Status: "Arquivado"})
	assert.ErrorIs(t, err, ErrInvalidProcesso)

	p, err := svc.Create(ctx, entity.Payload{Numero: " PRC-1 ", Assunto: "Compra"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.ID)
	assert.Equal(t, "PRC-1", p.Numero)
	assert.Equal(t, entity.StatusRecebido, p.Status)
	assert.Equal(t, entity.PrioridadeMedia, p.Prioridade)
	assert.False(t, p.AtualizadoEm.IsZero())

	_, err = svc.Create(ctx, entity.Payload{Numero: "PRC-1", Assunto: "Outro"})
	assert.ErrorIs(t, err, ErrDuplicateNumero)
}

func TestServiceUpdateDeleteNotFound(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Update(ctx, 99, entity.Payload{Numero: "n", Assunto: "a"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 99), ErrNotFound)
	_, err = svc.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceListClampsLimit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for _, n := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, entity.Payload{Numero: n, Assunto: "x"})
		require.NoError(t, err)
	}
	items, err := svc.List(ctx, 0, -5)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = svc.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "B", items[0].Numero)
}

func TestHandlerCRUD(t *testing.T) {
	h := NewHandler(newTestService(), zap.NewNop().Sugar())
	mux := http.NewServeMux()
	h.Register(mux, "/processos", func(next http.Handler) http.Handler { return next })

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
		return rec
	}

	rec := do(http.MethodPost, "/processos", map[string]string{"numero": "PRC-9", "assunto": "Licitação", "prioridade": "Alta"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created entity.Processo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, entity.PrioridadeAlta, created.Prioridade)

	rec = do(http.MethodPut, "/processos/1", map[string]string{"numero": "PRC-9", "assunto": "Licitação", "status": "Concluído"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/processos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []entity.Processo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, entity.StatusConcluido, list[0].Status)

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/processos", map[string]string{"numero": ""}).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodDelete, "/processos/abc", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/processos/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/processos/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/processos/1", nil).Code)
}

func TestPayloadMatches(t *testing.T) {
	p := entity.Processo{ID: 1, Payload: entity.Payload{Numero: "PRC-2024/00001", Assunto: "Abertura de licitação", Interessado: "Compras", Status: entity.StatusAndamento}}
	assert.True(t, p.Matches("licit"))
	assert.True(t, p.Matches("EM ANDAMENTO"))
	assert.True(t, p.Matches(""))
	assert.False(t, p.Matches("jurídico"))
}
