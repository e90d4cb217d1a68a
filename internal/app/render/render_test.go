package render

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type componentFunc func(ctx context.Context, w io.Writer) error

func (f componentFunc) Render(ctx context.Context, w io.Writer) error { return f(ctx, w) }

func TestRenderer_HTML(t *testing.T) {
	r := NewRenderer()
	rec := httptest.NewRecorder()

	err := r.HTML(context.Background(), rec, http.StatusOK, componentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<p>hi</p>")
		return err
	}))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "9", rec.Header().Get("Content-Length"))
	assert.Equal(t, "<p>hi</p>", rec.Body.String())
}

func TestRenderer_HTMLErrorWritesNothing(t *testing.T) {
	r := NewRenderer()
	rec := httptest.NewRecorder()
	boom := errors.New("boom")

	err := r.HTML(context.Background(), rec, http.StatusOK, componentFunc(func(ctx context.Context, w io.Writer) error {
		_, _ = io.WriteString(w, "<p>partial")
		return boom
	}))

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestRenderer_String(t *testing.T) {
	r := NewRenderer()

	for i := 0; i < 3; i++ {
		got, err := r.String(context.Background(), componentFunc(func(ctx context.Context, w io.Writer) error {
			_, err := io.WriteString(w, "same")
			return err
		}))
		require.NoError(t, err)
		assert.Equal(t, "same", got)
	}
}
