package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Allowed"))
	})
}

func TestIPBlocker(t *testing.T) {
	list := NewIPBlockList("10.0.0.1", " 10.0.0.2 ", "")
	handler := IPBlocker(list)(okHandler())

	tests := []struct {
		name       string
		remoteAddr string
		want       int
	}{
		{"configured ip", "10.0.0.1:12345", http.StatusForbidden},
		{"trimmed ip", "10.0.0.2:1", http.StatusForbidden},
		{"clean ip", "192.168.1.100:12345", http.StatusOK},
		{"no port", "10.0.0.1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("dynamic blocking", func(t *testing.T) {
		list.Add("1.2.3.4")
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "1.2.3.4:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), `"success":false`)

		list.Remove("1.2.3.4")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestIPBlockList_ReadFrom(t *testing.T) {
	list := NewIPBlockList()
	_, err := list.ReadFrom(strings.NewReader("# office\n10.1.1.1\n\n  10.1.1.2\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, list.Len())
	assert.True(t, list.IsBlocked("10.1.1.2"))
	assert.False(t, list.IsBlocked("# office"))
}
