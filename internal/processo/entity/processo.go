package entity

import (
	"strings"
	"time"
)

// Status is the workflow stage of a processo.
type Status string

const (
	StatusRecebido  Status = "Recebido"
	StatusAndamento Status = "Em andamento"
	StatusConcluido Status = "Concluído"

	DefaultStatus = StatusRecebido
)

// Statuses lists the accepted statuses in display order.
var Statuses = []Status{StatusRecebido, StatusAndamento, StatusConcluido}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Prioridade is the urgency of a processo.
type Prioridade string

const (
	PrioridadeBaixa Prioridade = "Baixa"
	PrioridadeMedia Prioridade = "Média"
	PrioridadeAlta  Prioridade = "Alta"

	DefaultPrioridade = PrioridadeMedia
)

var Prioridades = []Prioridade{PrioridadeBaixa, PrioridadeMedia, PrioridadeAlta}

func (p Prioridade) Valid() bool {
	for _, v := range Prioridades {
		if p == v {
			return true
		}
	}
	return false
}

// Payload is a processo without its id; it is the body of create and update.
type Payload struct {
	Numero       string     `json:"numero" db:"numero"`
	Assunto      string     `json:"assunto" db:"assunto"`
	Interessado  string     `json:"interessado" db:"interessado"`
	Status       Status     `json:"status" db:"status"`
	Prioridade   Prioridade `json:"prioridade" db:"prioridade"`
	AtualizadoEm time.Time  `json:"atualizadoEm" db:"atualizado_em"`
}

// Processo is a tracked workflow item.
type Processo struct {
	ID int64 `json:"id" db:"id"`
	Payload
}

// NewPayload returns an empty form with the default status and priority.
func NewPayload(now time.Time) Payload {
	return Payload{Status: DefaultStatus, Prioridade: DefaultPrioridade, AtualizadoEm: now}
}

// Normalize trims the text fields and fills defaults for the enums.
func (p Payload) Normalize() Payload {
	p.Numero = strings.TrimSpace(p.Numero)
	p.Assunto = strings.TrimSpace(p.Assunto)
	p.Interessado = strings.TrimSpace(p.Interessado)
	if p.Status == "" {
		p.Status = DefaultStatus
	}
	if p.Prioridade == "" {
		p.Prioridade = DefaultPrioridade
	}
	return p
}

// MissingFields names the required fields that are blank.
func (p Payload) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(p.Numero) == "" {
		missing = append(missing, "numero")
	}
	if strings.TrimSpace(p.Assunto) == "" {
		missing = append(missing, "assunto")
	}
	return missing
}

// Matches reports whether any text field contains q, ignoring case.
func (p Processo) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, f := range []string{p.Numero, p.Assunto, p.Interessado, string(p.Status), string(p.Prioridade)} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
