package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/entity"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

// ErrRequiredField is returned when a form is submitted with a required field blank.
var ErrRequiredField = errors.New("campo obrigatório")

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Severity Severity
	Summary  string
	Detail   string
}

type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a plain func to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// WriterNotifier prints one line per notice.
type WriterNotifier struct {
	W io.Writer
}

func (w WriterNotifier) Notify(n Notice) {
	fmt.Fprintf(w.W, "[%s] %s: %s\n", n.Severity, n.Summary, n.Detail)
}

// MockProcessos is what the board shows when the backend cannot be reached on load.
func MockProcessos(now time.Time) []entity.Processo {
	return []entity.Processo{
		{ID: 1, Payload: entity.Payload{
			Numero:       "PRC-2024/00001",
			Assunto:      "Abertura de licitação",
			Interessado:  "Departamento de Compras",
			Status:       entity.StatusAndamento,
			Prioridade:   entity.PrioridadeAlta,
			AtualizadoEm: now,
		}},
		{ID: 2, Payload: entity.Payload{
			Numero:       "PRC-2024/00002",
			Assunto:      "Atualização contratual",
			Interessado:  "Jurídico",
			Status:       entity.StatusRecebido,
			Prioridade:   entity.PrioridadeMedia,
			AtualizadoEm: now,
		}},
	}
}

// Board is the processo list of one console instance. The remote list is
// authoritative while the backend answers; after a failure changes are
// applied to the local copy, which the next successful Load replaces.
type Board struct {
	api    ProcessoAPI
	notify Notifier
	logger *zap.SugaredLogger
	now    func() time.Time
	nextID func() int64

	mu      sync.Mutex
	items   []entity.Processo
	offline bool
}

func NewBoard(api ProcessoAPI, notify Notifier, logger *zap.SugaredLogger) *Board {
	if logger == nil {
		logger = utilities.Nop()
	}
	if notify == nil {
		notify = NotifierFunc(func(Notice) {})
	}
	return &Board{api: api, notify: notify, logger: logger, now: time.Now, nextID: utilities.NextID}
}

// Items returns a copy of the current list.
func (b *Board) Items() []entity.Processo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entity.Processo(nil), b.items...)
}

// Offline reports whether the list is the local copy after a backend failure.
func (b *Board) Offline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offline
}

func (b *Board) Load(ctx context.Context) {
	items, err := b.api.List(ctx)
	if err != nil {
		b.logger.Warnw("processo list failed", "err", err)
		b.notify.Notify(Notice{Severity: SeverityWarn, Summary: "Aviso", Detail: "Não foi possível carregar do backend. Dados mockados exibidos."})
		b.mu.Lock()
		b.items = MockProcessos(b.now())
		b.offline = true
		b.mu.Unlock()
		return
	}
	b.mu.Lock()
	b.items = items
	b.offline = false
	b.mu.Unlock()
}

// Save creates (editingID == 0) or updates a processo. The only error is
// ErrRequiredField; backend failures fall back to the local copy.
func (b *Board) Save(ctx context.Context, editingID int64, in entity.Payload) error {
	if missing := in.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrRequiredField, strings.Join(missing, ", "))
	}
	in = in.Normalize()
	if in.AtualizadoEm.IsZero() {
		in.AtualizadoEm = b.now()
	}

	var (
		saved *entity.Processo
		err   error
	)
	if editingID != 0 {
		saved, err = b.api.Update(ctx, editingID, in)
	} else {
		saved, err = b.api.Create(ctx, in)
	}

	b.mu.Lock()
	switch {
	case err != nil:
		b.logger.Warnw("processo save failed", "id", editingID, "err", err)
		b.offline = true
		if editingID != 0 {
			b.replace(entity.Processo{ID: editingID, Payload: in})
		} else {
			b.items = append(b.items, entity.Processo{ID: b.nextID(), Payload: in})
		}
	case saved != nil:
		if editingID != 0 {
			b.replace(*saved)
		} else {
			b.items = append(b.items, *saved)
		}
	default:
		// accepted with an empty body: keep what was submitted
		if editingID != 0 {
			b.replace(entity.Processo{ID: editingID, Payload: in})
		} else {
			b.items = append(b.items, entity.Processo{ID: b.nextID(), Payload: in})
		}
	}
	b.mu.Unlock()

	if err != nil {
		b.notify.Notify(Notice{Severity: SeverityWarn, Summary: "Atenção", Detail: "Backend indisponível. Usando estado local."})
	}
	verb := "criado"
	if editingID != 0 {
		verb = "atualizado"
	}
	b.notify.Notify(Notice{Severity: SeveritySuccess, Summary: "Sucesso", Detail: "Processo " + verb + " com sucesso."})
	return nil
}

// replace swaps the item with the same id; callers hold mu.
func (b *Board) replace(p entity.Processo) {
	for i := range b.items {
		if b.items[i].ID == p.ID {
			b.items[i] = p
			return
		}
	}
}

// Remove deletes one processo; it is removed locally whatever the backend says.
func (b *Board) Remove(ctx context.Context, id int64) {
	if err := b.api.Remove(ctx, id); err != nil {
		b.logger.Warnw("processo remove failed", "id", id, "err", err)
		b.notify.Notify(Notice{Severity: SeverityWarn, Summary: "Atenção", Detail: "Backend indisponível. Removendo localmente."})
	}
	b.drop(map[int64]struct{}{id: {}})
	b.notify.Notify(Notice{Severity: SeveritySuccess, Summary: "Sucesso", Detail: "Processo removido."})
}

// RemoveSelected issues one remove per id concurrently and waits for all of
// them. Failures are logged only: every id leaves the list and the user sees
// a single success notice.
func (b *Board) RemoveSelected(ctx context.Context, ids []int64) {
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := b.api.Remove(ctx, id); err != nil {
				b.logger.Debugw("bulk remove failed", "id", id, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	selected := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		selected[id] = struct{}{}
	}
	b.drop(selected)
	b.notify.Notify(Notice{Severity: SeveritySuccess, Summary: "Sucesso", Detail: "Processos removidos."})
}

func (b *Board) drop(ids map[int64]struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.items[:0]
	for _, p := range b.items {
		if _, ok := ids[p.ID]; !ok {
			kept = append(kept, p)
		}
	}
	b.items = kept
}

// Filter returns the items matching q in any text column, ignoring case.
func (b *Board) Filter(q string) []entity.Processo {
	var out []entity.Processo
	for _, p := range b.Items() {
		if p.Matches(q) {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the item with id, if listed.
func (b *Board) Find(id int64) (entity.Processo, bool) {
	for _, p := range b.Items() {
		if p.ID == id {
			return p, true
		}
	}
	return entity.Processo{}, false
}
