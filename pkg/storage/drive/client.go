// Package drive is a minimal Drive v3 REST client: search, folder creation,
// upload-or-replace and download of JSON files.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/httpretry"
)

const (
	defaultBaseURL       = "https://www.googleapis.com/drive/v3/"
	defaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3/"

	FolderMimeType = "application/vnd.google-apps.folder"
	JSONMimeType   = "application/json"

	searchFields = "files(id,name)"
)

// TokenProvider supplies the bearer token for each request.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Store is the remote object store surface used by backup and restore.
type Store interface {
	SearchFile(ctx context.Context, name, parentID string) (string, bool, error)
	SearchFolder(ctx context.Context, name, parentID string) (string, bool, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	UploadOrReplace(ctx context.Context, folderID, name string, content []byte) (string, error)
	Download(ctx context.Context, fileID string) (json.RawMessage, error)
}

type Client struct {
	requester     httpretry.Doer
	tokens        TokenProvider
	baseURL       string
	uploadBaseURL string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithBaseURL overrides the metadata API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithUploadBaseURL overrides the media upload base URL.
func WithUploadBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.uploadBaseURL = trimmed
		}
	}
}

func NewClient(requester httpretry.Doer, tokens TokenProvider, opts ...Option) (*Client, error) {
	if requester == nil {
		return nil, fmt.Errorf("requester is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	client := &Client{
		requester:     requester,
		tokens:        tokens,
		baseURL:       defaultBaseURL,
		uploadBaseURL: defaultUploadBaseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type fileMetadata struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

type fileList struct {
	Files []fileMetadata `json:"files"`
}

// SearchFile looks up a non-trashed file by exact name, optionally inside parentID.
func (c *Client) SearchFile(ctx context.Context, name, parentID string) (string, bool, error) {
	return c.search(ctx, buildQuery(name, parentID, false))
}

// SearchFolder looks up a non-trashed folder by exact name, optionally inside parentID.
func (c *Client) SearchFolder(ctx context.Context, name, parentID string) (string, bool, error) {
	return c.search(ctx, buildQuery(name, parentID, true))
}

func (c *Client) search(ctx context.Context, query string) (string, bool, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", searchFields)

	var list fileList
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(c.baseURL, "files", params), nil, &list); err != nil {
		return "", false, err
	}
	if len(list.Files) == 0 || list.Files[0].ID == "" {
		return "", false, nil
	}
	return list.Files[0].ID, true, nil
}

// CreateFolder creates a folder and returns its id.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	meta := fileMetadata{Name: name, MimeType: FolderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	var created fileMetadata
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.baseURL, "files", nil), meta, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeRemoteAPI, fmt.Sprintf("create folder %q returned no id", name))
	}
	return created.ID, nil
}

// UploadOrReplace writes content as <folderID>/<name>, replacing the media of
// an existing file with the same name. Returns the file id.
func (c *Client) UploadOrReplace(ctx context.Context, folderID, name string, content []byte) (string, error) {
	fileID, found, err := c.SearchFile(ctx, name, folderID)
	if err != nil {
		return "", err
	}
	if !found {
		meta := fileMetadata{Name: name, MimeType: JSONMimeType, Parents: []string{folderID}}
		var created fileMetadata
		if err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.baseURL, "files", nil), meta, &created); err != nil {
			return "", err
		}
		if created.ID == "" {
			return "", pkgerrors.New(pkgerrors.CodeRemoteAPI, fmt.Sprintf("create file %q returned no id", name))
		}
		fileID = created.ID
	}

	params := url.Values{}
	params.Set("uploadType", "media")
	resp, err := c.send(ctx, http.MethodPatch, c.endpoint(c.uploadBaseURL, "files/"+url.PathEscape(fileID), params), bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return fileID, nil
}

// Download returns the media of fileID; the body must be valid JSON.
func (c *Client) Download(ctx context.Context, fileID string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("alt", "media")
	resp, err := c.send(ctx, http.MethodGet, c.endpoint(c.baseURL, "files/"+url.PathEscape(fileID), params), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "read download body")
	}
	if !json.Valid(raw) {
		return nil, pkgerrors.New(pkgerrors.CodeDataFormat, fmt.Sprintf("file %s is not valid JSON", fileID))
	}
	return json.RawMessage(raw), nil
}

func (c *Client) doJSON(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal drive request")
		}
		body = bytes.NewReader(payload)
	}
	resp, err := c.send(ctx, method, target, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemoteAPI, err, "decode drive response")
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build drive request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", JSONMimeType)
	}
	return c.requester.Do(ctx, req)
}

func (c *Client) endpoint(base, path string, params url.Values) string {
	target := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}

func buildQuery(name, parentID string, folder bool) string {
	clauses := []string{
		fmt.Sprintf("name='%s'", escapeQuery(name)),
		"trashed=false",
	}
	if folder {
		clauses = append(clauses, fmt.Sprintf("mimeType='%s'", FolderMimeType))
	}
	if parentID != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", escapeQuery(parentID)))
	}
	return strings.Join(clauses, " and ")
}

func escapeQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}
