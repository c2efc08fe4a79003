// Package drivetest provides an in-memory Drive v3 endpoint for tests.
package drivetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const (
	BaseURL       = "https://drive.test/drive/v3/"
	UploadBaseURL = "https://drive.test/upload/drive/v3/"

	metaPrefix   = "/drive/v3/files"
	uploadPrefix = "/upload/drive/v3/files/"
	folderMime   = "application/vnd.google-apps.folder"
)

var (
	nameRe   = regexp.MustCompile(`name='((?:[^'\\]|\\.)*)'`)
	parentRe = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
	mimeRe   = regexp.MustCompile(`mimeType='([^']*)'`)
)

// File is one stored object.
type File struct {
	ID       string
	Name     string
	MimeType string
	Parents  []string
	Content  []byte
}

// Fake implements the subset of Drive v3 used by the drive client.
type Fake struct {
	mu       sync.Mutex
	files    map[string]*File
	nextID   int
	calls    []string
	failures []int
	token    string
}

func New() *Fake {
	return &Fake{files: map[string]*File{}}
}

// RequireToken makes every request without "Bearer <token>" fail with 401.
func (f *Fake) RequireToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

// FailNext answers the next len(statuses) requests with the given statuses.
func (f *Fake) FailNext(statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, statuses...)
}

// Put seeds a file and returns its id.
func (f *Fake) Put(name, mimeType, parentID string, content []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.create(name, mimeType, parentID, content).ID
}

// Files returns a snapshot sorted by id.
func (f *Fake) Files() []File {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]File, 0, len(f.files))
	for _, file := range f.files {
		cp := *file
		cp.Content = append([]byte(nil), file.Content...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Find returns the first file with the given name inside parentID.
func (f *Fake) Find(name, parentID string) (File, bool) {
	for _, file := range f.Files() {
		if file.Name == name && hasParent(file.Parents, parentID) {
			return file, true
		}
	}
	return File{}, false
}

// Calls lists "METHOD path" for every request received.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Client returns an HTTP client whose transport is served by the fake.
func (f *Fake) Client() *http.Client {
	return &http.Client{Transport: f}
}

func (f *Fake) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func (f *Fake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.Method+" "+strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/upload"), "/drive/v3/"))

	if len(f.failures) > 0 {
		status := f.failures[0]
		f.failures = f.failures[1:]
		writeError(w, status, http.StatusText(status))
		return
	}
	if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
		writeError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, uploadPrefix) && r.Method == http.MethodPatch:
		f.upload(w, r, strings.TrimPrefix(path, uploadPrefix))
	case path == metaPrefix && r.Method == http.MethodGet:
		f.search(w, r.URL.Query().Get("q"))
	case path == metaPrefix && r.Method == http.MethodPost:
		f.createFromBody(w, r)
	case strings.HasPrefix(path, metaPrefix+"/") && r.Method == http.MethodGet && r.URL.Query().Get("alt") == "media":
		f.download(w, strings.TrimPrefix(path, metaPrefix+"/"))
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, path))
	}
}

func (f *Fake) search(w http.ResponseWriter, query string) {
	name := unescape(firstMatch(nameRe, query))
	parent := unescape(firstMatch(parentRe, query))
	mime := firstMatch(mimeRe, query)

	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	matches := []entry{}
	ids := make([]string, 0, len(f.files))
	for id := range f.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		file := f.files[id]
		if file.Name != name {
			continue
		}
		if mime != "" && file.MimeType != mime {
			continue
		}
		if parent != "" && !hasParent(file.Parents, parent) {
			continue
		}
		matches = append(matches, entry{ID: file.ID, Name: file.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": matches})
}

func (f *Fake) createFromBody(w http.ResponseWriter, r *http.Request) {
	var meta struct {
		Name     string   `json:"name"`
		MimeType string   `json:"mimeType"`
		Parents  []string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil || meta.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid metadata")
		return
	}
	parent := ""
	if len(meta.Parents) > 0 {
		parent = meta.Parents[0]
	}
	file := f.create(meta.Name, meta.MimeType, parent, nil)
	writeJSON(w, http.StatusOK, map[string]any{"id": file.ID, "name": file.Name, "mimeType": file.MimeType})
}

func (f *Fake) upload(w http.ResponseWriter, r *http.Request, id string) {
	file, ok := f.files[id]
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	file.Content = content
	writeJSON(w, http.StatusOK, map[string]any{"id": file.ID, "name": file.Name})
}

func (f *Fake) download(w http.ResponseWriter, id string) {
	file, ok := f.files[id]
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	w.Header().Set("Content-Type", file.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Content)
}

func (f *Fake) create(name, mimeType, parentID string, content []byte) *File {
	f.nextID++
	file := &File{
		ID:       fmt.Sprintf("id-%03d", f.nextID),
		Name:     name,
		MimeType: mimeType,
		Content:  content,
	}
	if parentID != "" {
		file.Parents = []string{parentID}
	}
	f.files[file.ID] = file
	return file
}

func hasParent(parents []string, parentID string) bool {
	if parentID == "" {
		return len(parents) == 0
	}
	for _, p := range parents {
		if p == parentID {
			return true
		}
	}
	return false
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
