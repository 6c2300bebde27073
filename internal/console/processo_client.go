package console

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/apiclient"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/entity"
)

const processoResource = "processos"

// ProcessoAPI is the remote processo resource as the board sees it.
type ProcessoAPI interface {
	List(ctx context.Context) ([]entity.Processo, error)
	Create(ctx context.Context, in entity.Payload) (*entity.Processo, error)
	Update(ctx context.Context, id int64, in entity.Payload) (*entity.Processo, error)
	Remove(ctx context.Context, id int64) error
}

// ProcessoClient calls the processo endpoints of the remote API.
type ProcessoClient struct {
	api *apiclient.Client
}

func NewProcessoClient(api *apiclient.Client) *ProcessoClient {
	return &ProcessoClient{api: api}
}

// listPageSize is the largest page the backend serves; it clamps anything
// above it and defaults to a smaller page when no limit is sent.
const listPageSize = 500

// List walks the collection page by page until a page comes back short. A
// page longer than asked means the backend ignores paging, so it is taken
// as the whole collection.
func (c *ProcessoClient) List(ctx context.Context) ([]entity.Processo, error) {
	all := make([]entity.Processo, 0)
	for offset := 0; ; offset += listPageSize {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(listPageSize))
		q.Set("offset", strconv.Itoa(offset))
		var page []entity.Processo
		if err := c.api.Do(ctx, http.MethodGet, processoResource+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) != listPageSize {
			return all, nil
		}
	}
}

// Create returns nil without error when the backend answers with an empty body.
func (c *ProcessoClient) Create(ctx context.Context, in entity.Payload) (*entity.Processo, error) {
	var out *entity.Processo
	if err := c.api.Do(ctx, http.MethodPost, processoResource, in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ProcessoClient) Update(ctx context.Context, id int64, in entity.Payload) (*entity.Processo, error) {
	var out *entity.Processo
	if err := c.api.Do(ctx, http.MethodPut, itemPath(id), in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ProcessoClient) Remove(ctx context.Context, id int64) error {
	return c.api.Do(ctx, http.MethodDelete, itemPath(id), nil, nil)
}

func itemPath(id int64) string {
	return processoResource + "/" + strconv.FormatInt(id, 10)
}
