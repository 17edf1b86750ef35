// Package relay provides the production runner.RelayClient implementation:
// a plain net/http JSON/multipart client for the relay service that
// brokers task input and output between the chain and worker nodes.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	runner "github.com/crynux-network/taskrunner"
)

// HTTPClient is the production runner.RelayClient.
type HTTPClient struct {
	base   string
	client *http.Client
}

// New builds an HTTPClient against baseURL. A nil client defaults to
// http.DefaultClient.
func New(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{base: baseURL, client: client}
}

func (c *HTTPClient) GetTask(ctx context.Context, taskID uint64) (runner.TaskArgs, error) {
	url := fmt.Sprintf("%s/v1/task/%d", c.base, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return runner.TaskArgs{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return runner.TaskArgs{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return runner.TaskArgs{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			TaskID uint64          `json:"task_id"`
			Args   json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return runner.TaskArgs{}, err
		}
		return runner.TaskArgs{TaskID: payload.TaskID, Raw: payload.Args}, nil
	case http.StatusNotFound:
		return runner.TaskArgs{}, &runner.RelayError{Message: "Task not found"}
	case http.StatusAccepted:
		return runner.TaskArgs{}, &runner.RelayError{Message: "Task not ready"}
	default:
		return runner.TaskArgs{}, &runner.RelayError{Message: fmt.Sprintf("relay returned %d: %s", resp.StatusCode, string(body))}
	}
}

func (c *HTTPClient) UploadTaskResult(ctx context.Context, taskID uint64, files []string) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	for i, path := range files {
		if err := attachFile(mw, i, path); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/task/%d/result", c.base, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("relay: uploading result for task %d: %d: %s", taskID, resp.StatusCode, string(b))
	}
	return nil
}

func attachFile(mw *multipart.Writer, index int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile(fmt.Sprintf("file%d", index), filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
