package render

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// Component matches templ.Component, so templ output can be passed directly.
type Component interface {
	Render(ctx context.Context, w io.Writer) error
}

type Renderer struct {
	pool sync.Pool
}

func NewRenderer() *Renderer {
	return &Renderer{
		pool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

// HTML renders component fully before writing anything, so a failing
// component never leaves a half-written page behind. On error nothing is
// written and the caller decides how to respond.
func (r *Renderer) HTML(ctx context.Context, w http.ResponseWriter, status int, component Component) error {
	buf := r.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer r.pool.Put(buf)

	if err := component.Render(ctx, buf); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// String renders component into a string.
func (r *Renderer) String(ctx context.Context, component Component) (string, error) {
	buf := r.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer r.pool.Put(buf)

	if err := component.Render(ctx, buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
