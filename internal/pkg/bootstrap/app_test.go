package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartService_ClosesInOrderAfterRunReturns(t *testing.T) {
	var closed []string
	closer := func(name string) Closer {
		return Closer{Name: name, Close: func(context.Context) error {
			closed = append(closed, name)
			return nil
		}}
	}

	registered := false
	err := StartService(context.Background(), AppInfo{
		ServiceName: "test",
		HTTPAddr:    "127.0.0.1:0",
		RegisterHandlers: func(mux *http.ServeMux) {
			registered = true
		},
		Run: func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		},
		Closers: []Closer{closer("poller"), closer("kafka"), closer("tracer"), closer("db")},
	})
	require.NoError(t, err)
	assert.True(t, registered)
	assert.Equal(t, []string{"poller", "kafka", "tracer", "db"}, closed)
}

func TestStartService_StopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- StartService(ctx, AppInfo{
			ServiceName: "test",
			Run: func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			},
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestStartService_ReturnsRunError(t *testing.T) {
	closerErr := errors.New("close failed")
	err := StartService(context.Background(), AppInfo{
		ServiceName: "test",
		Run: func(context.Context) error {
			return errors.New("fatal")
		},
		Closers: []Closer{{Name: "db", Close: func(context.Context) error { return closerErr }}},
	})
	require.Error(t, err)
	assert.Equal(t, "fatal", err.Error())
}
