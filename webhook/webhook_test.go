package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/models"
)

func TestDeliver_PostsSignedArray(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
		gotType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(config.DeliveryConfig{URL: srv.URL, Secret: "s3cr3t"}, nil)
	notices := []models.Notice{{RowNum: 1, ID: 501, NoticeAt: "10-07-2025 10:00", NoticeText: "hello"}}

	require.NoError(t, d.Deliver(context.Background(), notices))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	require.Len(t, decoded, 1)
	assert.EqualValues(t, 501, decoded[0]["id"])
	assert.Equal(t, "10-07-2025 10:00", decoded[0]["noticeAt"])
	assert.Contains(t, gotType, "application/json")
	assert.Equal(t, "sha256="+Sign("s3cr3t", gotBody), gotSig)
}

func TestDeliver_EmptyBatchIsArray(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		assert.Empty(t, r.Header.Get(SignatureHeader))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDeliverer(config.DeliveryConfig{URL: srv.URL}, nil)
	require.NoError(t, d.Deliver(context.Background(), nil))
	assert.Equal(t, "[]", gotBody)
}

func TestDeliver_Non2xxFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDeliverer(config.DeliveryConfig{URL: srv.URL}, nil)
	err := d.Deliver(context.Background(), []models.Notice{{ID: 1}})

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindDelivery))
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, 1, calls)
}

func TestDeliver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewDeliverer(config.DeliveryConfig{URL: url}, nil)
	err := d.Deliver(context.Background(), nil)
	assert.True(t, models.IsKind(err, models.ErrKindDelivery))
}

func TestSign(t *testing.T) {
	assert.Len(t, Sign("key", []byte("[]")), 64)
	assert.NotEqual(t, Sign("a", []byte("[]")), Sign("b", []byte("[]")))
}
