package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Song is one catalog entry served by ArchiveServer.
type Song struct {
	ID         string
	Title      string
	Artist     string
	UploadedAt time.Time
	Archive    []byte
}

// ArchiveServer is an in-process catalog that serves the song listing and
// archive downloads, with failure injection for retry tests.
type ArchiveServer struct {
	*httptest.Server

	mu            sync.Mutex
	songs         map[string]Song
	pageSize      int
	listStatus    int
	failures      map[string]int
	failStatus    map[string]int
	downloads     map[string]int
	downloadHook  func(id string)
	truncateBytes map[string]int
}

// NewArchiveServer starts a server and registers cleanup.
func NewArchiveServer(t testing.TB) *ArchiveServer {
	t.Helper()

	s := &ArchiveServer{
		songs:         make(map[string]Song),
		failures:      make(map[string]int),
		failStatus:    make(map[string]int),
		downloads:     make(map[string]int),
		truncateBytes: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /app/songs", s.handleList)
	mux.HandleFunc("GET /songs/{id}/download", s.handleDownload)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// AddSong registers or replaces a song.
func (s *ArchiveServer) AddSong(song Song) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.songs[song.ID] = song
}

// SetPageSize splits the listing into pages of n songs. Zero serves one page.
func (s *ArchiveServer) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// FailListing makes the listing respond with status. Zero restores it.
func (s *ArchiveServer) FailListing(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

// FailDownloads makes the next times downloads of id respond with status.
func (s *ArchiveServer) FailDownloads(id string, times, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = times
	s.failStatus[id] = status
}

// TruncateDownload serves only the first n bytes of id's archive while
// advertising the full length.
func (s *ArchiveServer) TruncateDownload(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncateBytes[id] = n
}

// OnDownload installs a hook that runs before each archive response.
func (s *ArchiveServer) OnDownload(hook func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadHook = hook
}

// Downloads returns how many download requests id received.
func (s *ArchiveServer) Downloads(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads[id]
}

// TotalDownloads returns the number of download requests across all songs.
func (s *ArchiveServer) TotalDownloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.downloads {
		total += n
	}
	return total
}

type songJSON struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	UploadedAt string `json:"uploaded_at"`
}

func (s *ArchiveServer) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.listStatus
	pageSize := s.pageSize
	songs := make([]Song, 0, len(s.songs))
	for _, song := range s.songs {
		songs = append(songs, song)
	}
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, "listing unavailable", status)
		return
	}

	sort.Slice(songs, func(i, j int) bool {
		if !songs[i].UploadedAt.Equal(songs[j].UploadedAt) {
			return songs[i].UploadedAt.After(songs[j].UploadedAt)
		}
		return songs[i].ID < songs[j].ID
	})

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	start, end := 0, len(songs)
	if pageSize > 0 {
		start = min((page-1)*pageSize, len(songs))
		end = min(start+pageSize, len(songs))
	}

	payload := struct {
		Data  []songJSON `json:"data"`
		Links struct {
			Next *string `json:"next"`
		} `json:"links"`
	}{Data: []songJSON{}}
	for _, song := range songs[start:end] {
		payload.Data = append(payload.Data, songJSON{
			ID:         song.ID,
			UserID:     "u-" + song.ID,
			Title:      song.Title,
			Artist:     song.Artist,
			UploadedAt: song.UploadedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	if end < len(songs) {
		next := fmt.Sprintf("/app/songs?sort=uploaded&page=%d", page+1)
		payload.Links.Next = &next
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *ArchiveServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	s.downloads[id]++
	hook := s.downloadHook
	song, ok := s.songs[id]
	failing := s.failures[id] > 0
	status := s.failStatus[id]
	if failing {
		s.failures[id]--
	}
	truncate, truncated := s.truncateBytes[id]
	s.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	if failing {
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, strings.ToLower(http.StatusText(status)), status)
		return
	}

	body := song.Archive
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if truncated && truncate < len(body) {
		body = body[:truncate]
	}
	_, _ = w.Write(body)
}
