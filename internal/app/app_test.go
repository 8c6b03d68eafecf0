package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBaseContext_SurvivesShutdownSignal(t *testing.T) {
	lg := zap.NewNop().Named("drain")
	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), lg))

	type seen struct {
		err error
		lg  *zap.Logger
	}
	got := make(chan seen, 1)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- seen{err: r.Context().Err(), lg: zctx.From(r.Context())}
		w.WriteHeader(http.StatusNoContent)
	}))
	srv.Config.BaseContext = baseContext(ctx)
	srv.Start()
	defer srv.Close()

	// Requests accepted while draining still run to completion.
	cancel()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	s := <-got
	assert.NoError(t, s.err)
	assert.Same(t, lg, s.lg)
}
