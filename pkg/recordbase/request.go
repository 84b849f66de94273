package recordbase

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/recordbase/recordbase_sdk_go/internal/httpx"
)

// Query keys consumed by the dispatcher itself and never sent upstream.
const (
	queryAutoCancel  = "autoCancel"
	queryCancelKey   = "cancelKey"
	queryAutoCancel2 = "$autoCancel"
	queryCancelKey2  = "$cancelKey"
)

// BeforeSendFunc may inspect or replace the fully built request. Returning
// nil keeps the original request.
type BeforeSendFunc func(req *http.Request) *http.Request

// AfterSendFunc receives the raw response (its body already buffered) and the
// decoded value. Its result replaces the decoded value; an error aborts the
// call.
type AfterSendFunc func(resp *http.Response, data any) (any, error)

// Request describes a single dispatch. A nil *Request sends a bare GET.
type Request struct {
	Method string
	Header http.Header
	Query  url.Values
	// Body is sent as JSON unless it is a *Multipart or Multipart.
	Body any
	// AutoCancel overrides auto-cancellation for this request only.
	AutoCancel *bool
	// CancelKey replaces the default "<METHOD> <path>" cancellation key.
	CancelKey string
}

// Bool returns a pointer to v, for Request.AutoCancel.
func Bool(v bool) *bool {
	return &v
}

// Multipart is a pre-built multipart form body. Its content type is used
// verbatim and no JSON content type is added.
type Multipart struct {
	Body        io.Reader
	ContentType string
}

// FormFile is a file part of a multipart form.
type FormFile struct {
	Field    string
	Filename string
	Content  io.Reader
}

// NewMultipart builds a buffered multipart form from plain fields and files.
func NewMultipart(fields map[string]string, files ...FormFile) (*Multipart, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("recordbase: write form field %s: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, fmt.Errorf("recordbase: create form file %s: %w", f.Field, err)
		}
		if f.Content != nil {
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, fmt.Errorf("recordbase: copy form file %s: %w", f.Field, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("recordbase: close multipart form: %w", err)
	}
	return &Multipart{Body: bytes.NewReader(buf.Bytes()), ContentType: w.FormDataContentType()}, nil
}

// encodeBody returns the request body for v, setting Content-Type on header
// when the caller left it empty.
func encodeBody(v any, header http.Header) (io.Reader, error) {
	setType := func(ct string) {
		if header.Get("Content-Type") == "" && ct != "" {
			header.Set("Content-Type", ct)
		}
	}
	switch b := v.(type) {
	case nil:
		return nil, nil
	case *Multipart:
		if b == nil {
			return nil, nil
		}
		setType(b.ContentType)
		return b.Body, nil
	case Multipart:
		setType(b.ContentType)
		return b.Body, nil
	case []byte:
		setType("application/json")
		return bytes.NewReader(b), nil
	case io.Reader:
		setType("application/json")
		return b, nil
	default:
		data, err := httpx.JSONMarshal(v)
		if err != nil {
			return nil, fmt.Errorf("recordbase: encode request body: %w", err)
		}
		setType("application/json")
		return bytes.NewReader(data), nil
	}
}

// splitQuery copies q without the dispatcher-only keys and reports the
// values they carried.
func splitQuery(q url.Values) (out url.Values, autoCancel *bool, cancelKey string) {
	out = make(url.Values, len(q))
	for k, values := range q {
		switch k {
		case queryAutoCancel, queryAutoCancel2:
			if len(values) > 0 {
				if v, err := strconv.ParseBool(values[0]); err == nil {
					autoCancel = &v
				}
			}
		case queryCancelKey, queryCancelKey2:
			if len(values) > 0 && values[0] != "" {
				cancelKey = values[0]
			}
		default:
			out[k] = append([]string(nil), values...)
		}
	}
	return out, autoCancel, cancelKey
}
