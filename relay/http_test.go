package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	runner "github.com/crynux-network/taskrunner"
)

func TestGetTaskDecodesOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/task/7", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"task_id":7,"args":{"prompt":"hi"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	args, err := c.GetTask(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, uint64(7), args.TaskID)
	require.JSONEq(t, `{"prompt":"hi"}`, string(args.Raw))
}

func TestGetTaskMapsNotFoundAndNotReady(t *testing.T) {
	for _, tc := range []struct {
		status int
		want   string
	}{
		{http.StatusNotFound, "Task not found"},
		{http.StatusAccepted, "Task not ready"},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := New(srv.URL, nil)
		_, err := c.GetTask(context.Background(), 1)

		var relayErr *runner.RelayError
		require.ErrorAs(t, err, &relayErr)
		require.Equal(t, tc.want, relayErr.Message)
		srv.Close()
	}
}

func TestUploadTaskResultSendsEachFileAsAPart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	var gotParts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/task/3/result", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotParts = len(r.MultipartForm.File)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	require.NoError(t, c.UploadTaskResult(context.Background(), 3, []string{path}))
	require.Equal(t, 1, gotParts)
}

func TestUploadTaskResultReturnsErrorOnNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	err := c.UploadTaskResult(context.Background(), 3, nil)
	require.Error(t, err)
}
