package server_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/server"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func httpGet(t *testing.T, url string) (*http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	return http.DefaultClient.Do(req)
}

func waitForHealthy(t *testing.T, base string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := httpGet(t, base+"/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRunServesHealthAndShutsDownGracefully(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())

	ln := newTestListener(t)
	base := fmt.Sprintf("http://%s", ln.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, server.Params{Name: "testservice"}, ln)
	}()

	waitForHealthy(t, base)

	resp, err := httpGet(t, base+"/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"healthy"`)
	assert.Contains(t, string(body), `"service":"testservice"`)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(domain.ShutdownDrainDelay + domain.ShutdownHTTPTimeout + 5*time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestRunHealthRejectsNonGet(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())

	ln := newTestListener(t)
	base := fmt.Sprintf("http://%s", ln.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, server.Params{Name: "testservice"}, ln)
	}()

	waitForHealthy(t, base)

	resp, err := http.Post(base+"/health", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	cancel()
	select {
	case <-errCh:
	case <-time.After(domain.ShutdownDrainDelay + domain.ShutdownHTTPTimeout + 5*time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestRunDrainReportsShuttingDown(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())

	ln := newTestListener(t)
	base := fmt.Sprintf("http://%s", ln.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, server.Params{Name: "testservice"}, ln)
	}()

	waitForHealthy(t, base)
	cancel()

	// The drain delay keeps the listener serving 503s before the final
	// HTTP shutdown, so the load balancer sees the instance leave.
	require.Eventually(t, func() bool {
		resp, err := httpGet(t, base+"/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	}, domain.ShutdownDrainDelay, 20*time.Millisecond)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(domain.ShutdownDrainDelay + domain.ShutdownHTTPTimeout + 5*time.Second):
		t.Fatal("server did not shut down in time")
	}
}
