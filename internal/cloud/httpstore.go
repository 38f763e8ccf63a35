package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// HTTPStore talks to an sz-cloud document server
type HTTPStore struct {
	BaseURL string
	Project string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPStore creates a client for one project on an sz-cloud server
func NewHTTPStore(baseURL, project, apiKey string) *HTTPStore {
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Project: project,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// request and response bodies, mirrored independently by the server
type documentBody struct {
	Data Document `json:"data"`
}

type documentList struct {
	Documents []Snapshot `json:"documents"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *HTTPStore) collectionPath(collection string) string {
	return fmt.Sprintf("/v1/projects/%s/collections/%s", url.PathEscape(c.Project), url.PathEscape(collection))
}

func (c *HTTPStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodPost, c.collectionPath(collection)+"/documents", documentBody{Data: doc}, &snap); err != nil {
		return "", err
	}
	if snap.ID == "" {
		return "", fmt.Errorf("add %s: server returned no document id", collection)
	}
	return snap.ID, nil
}

func (c *HTTPStore) Set(ctx context.Context, collection, id string, doc Document) error {
	return c.do(ctx, http.MethodPut, c.collectionPath(collection)+"/documents/"+url.PathEscape(id), documentBody{Data: doc}, nil)
}

func (c *HTTPStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, c.collectionPath(collection)+"/documents/"+url.PathEscape(id), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *HTTPStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	var list documentList
	if err := c.do(ctx, http.MethodGet, c.collectionPath(collection)+"/documents", nil, &list); err != nil {
		return nil, err
	}
	return list.Documents, nil
}

func (c *HTTPStore) Where(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode where value: %w", err)
	}
	q := url.Values{}
	q.Set("where", field)
	q.Set("eq", string(raw))

	var list documentList
	if err := c.do(ctx, http.MethodGet, c.collectionPath(collection)+"/documents?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return list.Documents, nil
}

func (c *HTTPStore) Delete(ctx context.Context, collection, id string) error {
	err := c.do(ctx, http.MethodDelete, c.collectionPath(collection)+"/documents/"+url.PathEscape(id), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *HTTPStore) Close() error {
	c.HTTP.CloseIdleConnections()
	return nil
}

// Watch opens the server's websocket change stream for a collection
func (c *HTTPStore) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	wsURL := c.BaseURL + c.collectionPath(collection) + "/listen"
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.APIKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", ErrUnavailable, collection, err)
	}

	ch := make(chan Change, 16)
	go func() {
		defer close(ch)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var change Change
			if err := wsjson.Read(ctx, conn, &change); err != nil {
				if ctx.Err() == nil {
					slog.Debug("listen stream closed", "collection", collection, "err", err)
				}
				return
			}
			select {
			case ch <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *HTTPStore) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env struct {
			Error apiError `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &env) == nil && env.Error.Code != "" {
			msg = env.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, msg)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
		}
		if env.Error.Code != "" {
			return &env.Error
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

var (
	_ Store   = (*HTTPStore)(nil)
	_ Watcher = (*HTTPStore)(nil)
)
