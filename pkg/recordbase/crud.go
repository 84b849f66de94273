package recordbase

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBatchSize is the page size used by GetFullList.
const DefaultBatchSize = 200

// CrudService exposes the list/get/create/update/delete endpoints under a
// base path and decodes items into T.
type CrudService[T any] struct {
	client   *Client
	basePath string
}

// NewCrudService binds a CrudService to basePath, e.g.
// "/api/collections/posts/records".
func NewCrudService[T any](c *Client, basePath string) *CrudService[T] {
	return &CrudService[T]{client: c, basePath: "/" + strings.Trim(basePath, "/")}
}

// BasePath returns the path the service is bound to.
func (s *CrudService[T]) BasePath() string {
	return s.basePath
}

func (s *CrudService[T]) itemPath(id string) string {
	return s.basePath + "/" + url.PathEscape(id)
}

// GetList returns one page of items. page and perPage apply when params
// leaves them unset.
func (s *CrudService[T]) GetList(ctx context.Context, page, perPage int, params *ListParams) (*ListResult[T], error) {
	return s.list(ctx, page, perPage, params, "")
}

func (s *CrudService[T]) list(ctx context.Context, page, perPage int, params *ListParams, cancelKey string) (*ListResult[T], error) {
	p := params.clone()
	if p.Page <= 0 {
		p.Page = page
	}
	if p.PerPage <= 0 {
		p.PerPage = perPage
	}
	res, err := Send[ListResult[T]](ctx, s.client, s.basePath, &Request{
		Method:    http.MethodGet,
		Query:     p.Values(),
		CancelKey: cancelKey,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetFullList fetches every item by walking pages of batch items until a
// page comes back empty or the reported total is reached.
func (s *CrudService[T]) GetFullList(ctx context.Context, batch int, params *ListParams) ([]T, error) {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	p := params.clone()
	p.Page, p.PerPage = 0, 0

	var items []T
	for page := 1; ; page++ {
		res, err := s.GetList(ctx, page, batch, p)
		if err != nil {
			return nil, err
		}
		items = append(items, res.Items...)
		if len(res.Items) == 0 || res.TotalItems <= len(items) {
			break
		}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// GetFirstListItem returns the first item matching filter. It fails with a
// 404 *ResponseError when nothing matches.
func (s *CrudService[T]) GetFirstListItem(ctx context.Context, filter string, params *ListParams) (T, error) {
	var zero T
	p := params.clone()
	p.Filter = filter
	p.Page, p.PerPage = 0, 0
	cancelKey := "one_by_filter_" + s.basePath + "_" + filter

	res, err := s.list(ctx, 1, 1, p, cancelKey)
	if err != nil {
		return zero, err
	}
	if len(res.Items) == 0 {
		return zero, newNotFoundError(s.client.BuildURL(s.basePath))
	}
	return res.Items[0], nil
}

// GetOne returns the item with id.
func (s *CrudService[T]) GetOne(ctx context.Context, id string, params *QueryParams) (T, error) {
	return Send[T](ctx, s.client, s.itemPath(id), &Request{
		Method: http.MethodGet,
		Query:  params.Values(),
	})
}

// Create posts body (JSON or *Multipart) and returns the created item.
func (s *CrudService[T]) Create(ctx context.Context, body any, params *QueryParams) (T, error) {
	return Send[T](ctx, s.client, s.basePath, &Request{
		Method: http.MethodPost,
		Query:  params.Values(),
		Body:   body,
	})
}

// Update patches the item with id and returns the updated item.
func (s *CrudService[T]) Update(ctx context.Context, id string, body any, params *QueryParams) (T, error) {
	return Send[T](ctx, s.client, s.itemPath(id), &Request{
		Method: http.MethodPatch,
		Query:  params.Values(),
		Body:   body,
	})
}

// Delete removes the item with id.
func (s *CrudService[T]) Delete(ctx context.Context, id string, params *QueryParams) error {
	_, err := Send[any](ctx, s.client, s.itemPath(id), &Request{
		Method: http.MethodDelete,
		Query:  params.Values(),
	})
	return err
}
