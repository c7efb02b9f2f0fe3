package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/common"
)

// DefaultRequestTimeout bounds every REST call.
const DefaultRequestTimeout = 15 * time.Second

// TokenSource returns the current bearer token; "" means guest.
type TokenSource func() string

type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	timeout time.Duration
}

func NewHTTPClient(baseURL string, timeout time.Duration, token TokenSource) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		token:   token,
		timeout: timeout,
	}
}

func sessionPath(sessionID string, parts ...string) string {
	p := "/sessions/" + url.PathEscape(sessionID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.mapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(b, &payload) == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Error
		}
	} else {
		msg = strings.TrimSpace(string(b))
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func (c *HTTPClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (c *HTTPClient) CreateSession(ctx context.Context) (*SessionDTO, error) {
	var s SessionDTO
	if err := c.do(ctx, http.MethodPost, "/sessions", struct{}{}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) GetSessionByCode(ctx context.Context, code string) (*SessionDTO, error) {
	var s SessionDTO
	if err := c.do(ctx, http.MethodGet, "/sessions/code/"+url.PathEscape(code), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID), nil, nil)
}

func (c *HTTPClient) ActiveSessions(ctx context.Context) ([]SessionDTO, error) {
	var list []SessionDTO
	if err := c.do(ctx, http.MethodGet, "/sessions/active", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *HTTPClient) JoinSession(ctx context.Context, sessionID string) (*ParticipantDTO, error) {
	var p ParticipantDTO
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "participants"), struct{}{}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) LeaveSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID, "participants"), nil, nil)
}

func (c *HTTPClient) Participants(ctx context.Context, sessionID string) (*RosterDTO, error) {
	var r RosterDTO
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "participants"), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *HTTPClient) Settings(ctx context.Context, sessionID string) (*SettingsDTO, error) {
	var s SettingsDTO
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "participants", "me", "settings"), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) UpdateSettings(ctx context.Context, sessionID string, in SettingsDTO) (*SettingsDTO, error) {
	var s SettingsDTO
	if err := c.do(ctx, http.MethodPatch, sessionPath(sessionID, "participants", "me", "settings"), in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) RequestUploadURL(ctx context.Context, sessionID string, in UploadURLRequest) (*UploadURLResponse, error) {
	var r UploadURLResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "files", "upload-url"), in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *HTTPClient) ConfirmUpload(ctx context.Context, sessionID string, in ConfirmUploadRequest) (*FileDTO, error) {
	var f FileDTO
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "files", "confirm"), in, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *HTTPClient) Files(ctx context.Context, sessionID string) ([]FileDTO, error) {
	var list []FileDTO
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "files"), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *HTTPClient) DownloadURL(ctx context.Context, sessionID, fileID string) (string, error) {
	var r DownloadURLResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "files", url.PathEscape(fileID), "download"), nil, &r); err != nil {
		return "", err
	}
	return r.DownloadURL, nil
}

func (c *HTTPClient) MarkDownloaded(ctx context.Context, sessionID, fileID string) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "files", url.PathEscape(fileID), "mark-downloaded"), struct{}{}, nil)
}

func (c *HTTPClient) Notes(ctx context.Context, sessionID string) ([]NoteDTO, error) {
	var list []NoteDTO
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "notes"), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *HTTPClient) CreateNote(ctx context.Context, sessionID string, in CreateNoteRequest) (*NoteDTO, error) {
	var n NoteDTO
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "notes"), in, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
