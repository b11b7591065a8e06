package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adscanio/api/pkg/logger"
	"github.com/adscanio/api/pkg/validator"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(_ context.Context) error {
	return p.err
}

func newTestRouter(pinger Pinger) http.Handler {
	log := logger.NewNop()
	scans := NewScanHandler(nil, nil, nil, validator.New(), log)
	dispositions := NewDispositionHandler(nil, log)
	return NewRouter(scans, dispositions, pinger, log)
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(&fakePinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ReadyzReflectsDatabase(t *testing.T) {
	pinger := &fakePinger{}
	router := newTestRouter(pinger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	pinger.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
