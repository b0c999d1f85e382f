package extract

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"

	"packsync/internal/archive"
	"packsync/internal/catalog"
	"packsync/internal/charset"
	"packsync/internal/config"
	"packsync/internal/fileutil"
	"packsync/internal/logging"
	"packsync/internal/services"
	"packsync/internal/state"
)

// FingerprintPrefix marks fingerprints computed over archive bytes.
const FingerprintPrefix = "blake3:"

const filePerm = 0o644

// stagingIDBytes bounds the item id part of a staged archive name so the
// random suffix fits within the file name length limit.
const stagingIDBytes = 64

// HTTPDoer describes the HTTP client used for archive downloads.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pipeline downloads one catalog item, extracts it into its own directory
// under the target dir, and returns the record to commit.
type Pipeline struct {
	client          HTTPDoer
	detector        *charset.Detector
	targetDir       string
	stagingDir      string
	downloadTimeout time.Duration
	flatten         bool
	maxEntryBytes   int64
	userAgent       string
	logger          *slog.Logger
	now             func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithHTTPClient replaces the download client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(p *Pipeline) {
		if client != nil {
			p.client = client
		}
	}
}

// WithClock replaces the clock used for last_synced_at.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New builds a pipeline from configuration and a detector.
func New(cfg *config.Config, detector *charset.Detector, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "configure", "config is nil", nil)
	}
	if detector == nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "configure", "detector is nil", nil)
	}
	p := &Pipeline{
		client:          &http.Client{},
		detector:        detector,
		targetDir:       cfg.Paths.TargetDir,
		stagingDir:      cfg.Paths.StagingDir,
		downloadTimeout: cfg.DownloadTimeout(),
		flatten:         cfg.Extract.Flatten,
		maxEntryBytes:   cfg.Extract.MaxEntryBytes,
		userAgent:       cfg.Catalog.UserAgent,
		logger:          logging.NewComponentLogger(logger, "extract"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewFromConfig builds the detector from the [extract] section and then the
// pipeline.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	detector, err := charset.NewFromConfig(cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "configure", "build encoding detector", err)
	}
	return New(cfg, detector, logger, opts...)
}

// ItemDir returns the directory an item extracts into.
func (p *Pipeline) ItemDir(itemID string) string {
	return filepath.Join(p.targetDir, itemID)
}

// Process downloads and extracts item. Files are written before the record is
// returned; the caller commits the record. Cancellation is observed between
// entries so a started entry write always completes.
func (p *Pipeline) Process(ctx context.Context, item catalog.Item) (state.Record, Report, error) {
	var report Report
	if !catalog.ValidID(item.ID) {
		return state.Record{}, report, services.Wrap(services.ErrWrite, "extract", "validate", fmt.Sprintf("item id %q cannot name a directory", item.ID), nil)
	}
	ctx = services.WithItemID(ctx, item.ID)
	logger := logging.WithContext(services.WithStage(ctx, "download"), p.logger)

	staged, err := p.download(ctx, item)
	if err != nil {
		return state.Record{}, report, err
	}
	defer func() {
		if removeErr := os.Remove(staged.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logging.WarnWithContext(logger, "failed to remove staged archive", "staging_cleanup_failed",
				logging.String("path", staged.path),
				logging.Error(removeErr),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed until stale cleanup"),
			)
		}
	}()
	logger.Debug("archive downloaded",
		logging.Int64("bytes", staged.size),
		logging.String("fingerprint", staged.fingerprint),
	)

	report, err = p.extract(services.WithStage(ctx, "extract"), staged.path, item)
	if err != nil {
		return state.Record{}, report, err
	}

	synced := p.now().UTC()
	if item.UpdatedAt.After(synced) {
		// A catalog clock ahead of ours would otherwise re-plan the item on
		// every pass.
		synced = item.UpdatedAt.UTC()
	}
	return state.Record{
		ItemID:          item.ID,
		LastSyncedAt:    synced,
		Fingerprint:     staged.fingerprint,
		DisplayName:     item.DisplayName,
		SourceUpdatedAt: item.UpdatedAt,
	}, report, nil
}

type stagedArchive struct {
	path        string
	size        int64
	fingerprint string
}

func (p *Pipeline) download(ctx context.Context, item catalog.Item) (stagedArchive, error) {
	dlCtx := ctx
	if p.downloadTimeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, p.downloadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, item.DownloadURL, nil)
	if err != nil {
		return stagedArchive{}, services.Wrap(services.ErrDownload, "download", "build request", item.DownloadURL, err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return stagedArchive{}, transferError(ctx, "request", item.DownloadURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return stagedArchive{}, services.Wrap(services.ErrDownload, "download", "request",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	if err := os.MkdirAll(p.stagingDir, 0o755); err != nil {
		return stagedArchive{}, services.Wrap(services.ErrWrite, "download", "stage", "create staging directory", err)
	}
	tmp, err := os.CreateTemp(p.stagingDir, stagingPattern(item.ID))
	if err != nil {
		return stagedArchive{}, services.Wrap(services.ErrWrite, "download", "stage", "create staged archive", err)
	}
	staged := stagedArchive{path: tmp.Name()}
	fail := func(err error) (stagedArchive, error) {
		_ = tmp.Close()
		_ = os.Remove(staged.path)
		return stagedArchive{}, err
	}

	hasher := blake3.New()
	body := &trackedReader{r: resp.Body}
	staged.size, err = io.Copy(io.MultiWriter(tmp, hasher), body)
	if err != nil {
		if body.err != nil {
			return fail(transferError(ctx, "read body", item.DownloadURL, body.err))
		}
		return fail(services.Wrap(services.ErrWrite, "download", "stage", "write staged archive", err))
	}
	if resp.ContentLength >= 0 && staged.size != resp.ContentLength {
		return fail(services.Wrap(services.ErrDownload, "download", "read body",
			fmt.Sprintf("short body: got %d of %d bytes", staged.size, resp.ContentLength), nil))
	}
	if err := tmp.Close(); err != nil {
		return fail(services.Wrap(services.ErrWrite, "download", "stage", "close staged archive", err))
	}
	staged.fingerprint = FingerprintPrefix + hex.EncodeToString(hasher.Sum(nil))
	return staged, nil
}

func stagingPattern(id string) string {
	if len(id) > stagingIDBytes {
		cut := stagingIDBytes
		for cut > 0 && !utf8.RuneStart(id[cut]) {
			cut--
		}
		id = id[:cut]
	}
	return id + "-*.zip"
}

// transferError classifies a failed request or body read. Cancellation of the
// pass wins over the per-download timeout.
func transferError(ctx context.Context, op, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return services.Wrap(services.ErrCancelled, "download", op, "download cancelled", ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrDownload, "download", op, "download timed out: "+url, err)
	}
	return services.Wrap(services.ErrDownload, "download", op, url, err)
}

func (p *Pipeline) extract(ctx context.Context, archivePath string, item catalog.Item) (Report, error) {
	var report Report
	logger := logging.WithContext(ctx, p.logger)

	reader, err := archive.Open(archivePath, p.detector)
	if err != nil {
		return report, err
	}
	defer reader.Close()

	itemDir := p.ItemDir(item.ID)
	if err := fileutil.MkdirAllDurable(itemDir, 0o755); err != nil {
		return report, services.Wrap(services.ErrWrite, "extract", "mkdir", itemDir, err)
	}
	kept := make(map[string]struct{})

	for entry, entryErr := range reader.Entries() {
		if err := ctx.Err(); err != nil {
			return report, services.Wrap(services.ErrCancelled, "extract", "extract", "extraction interrupted between entries", err)
		}
		report.Entries++
		if entryErr != nil {
			if !errors.Is(entryErr, services.ErrEntryRejected) {
				return report, entryErr
			}
			report.Rejected = append(report.Rejected, Rejection{RawName: entry.RawName, Name: entry.Name, Err: entryErr})
			logging.WarnWithContext(logger, "archive entry rejected", "entry_rejected",
				logging.String(logging.FieldEntry, entry.Name),
				logging.String(logging.FieldRawEntry, hex.EncodeToString(entry.RawName)),
				logging.Error(entryErr),
				logging.String(logging.FieldErrorKind, string(services.KindOf(entryErr))),
				logging.String(logging.FieldImpact, "entry skipped; the rest of the item is extracted"),
				logging.String(logging.FieldErrorHint, "the archive names a path outside its own directory"),
			)
			continue
		}
		if entry.Confidence != charset.High {
			report.Doubtful = append(report.Doubtful, DoubtfulName{Name: entry.Name, Encoding: entry.Encoding, Confidence: entry.Confidence})
			attrs := []logging.Attr{
				logging.String(logging.FieldEntry, entry.Name),
				logging.String(logging.FieldRawEntry, hex.EncodeToString(entry.RawName)),
				logging.String(logging.FieldEncoding, entry.Encoding),
				logging.String(logging.FieldConfidence, entry.Confidence.String()),
				logging.String(logging.FieldImpact, "file extracted under a possibly wrong name"),
				logging.String(logging.FieldErrorHint, "adjust extract.encodings if names look garbled"),
			}
			if entry.Confidence == charset.Fallback {
				// No candidate encoding produced a plausible name.
				attrs = append(attrs, logging.Alert("entry_name_fallback"))
			}
			logging.WarnWithContext(logger, "entry name decoded with reduced confidence", "entry_name_doubtful", attrs...)
		}

		if entry.IsDir {
			if p.flatten {
				continue
			}
			dir := filepath.Join(itemDir, filepath.FromSlash(entry.Name))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return report, services.Wrap(services.ErrWrite, "extract", "mkdir", entry.Name, err)
			}
			kept[norm.NFC.String(entry.Name)] = struct{}{}
			report.Directories++
			continue
		}

		rel := entry.Name
		if p.flatten {
			rel = path.Base(rel)
		}
		written, err := p.writeEntry(itemDir, rel, entry)
		if err != nil {
			return report, err
		}
		kept[norm.NFC.String(rel)] = struct{}{}
		report.FilesWritten++
		report.BytesWritten += written
	}

	pruned, err := prune(itemDir, kept)
	report.Pruned = pruned
	if err != nil {
		return report, services.Wrap(services.ErrWrite, "extract", "prune", itemDir, err)
	}

	logger.Info("item extracted",
		logging.String("item", item.Label()),
		logging.Int("files", report.FilesWritten),
		logging.Int("pruned", report.Pruned),
		logging.Int("rejected", len(report.Rejected)),
		logging.Int("doubtful_names", len(report.Doubtful)),
	)
	return report, nil
}

// prune removes whatever a previous extraction left in itemDir that the
// current archive no longer names. kept holds slash separated paths relative
// to itemDir in NFC, since some filesystems store names decomposed.
// Directories are removed only once empty.
func prune(itemDir string, kept map[string]struct{}) (int, error) {
	var (
		removed int
		dirs    []string
	)
	err := filepath.WalkDir(itemDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == itemDir {
			return nil
		}
		rel, err := filepath.Rel(itemDir, p)
		if err != nil {
			return err
		}
		rel = norm.NFC.String(filepath.ToSlash(rel))
		if d.IsDir() {
			dirs = append(dirs, rel)
			return nil
		}
		if _, ok := kept[rel]; ok {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}

	// WalkDir yields parents before children.
	for i := len(dirs) - 1; i >= 0; i-- {
		if _, ok := kept[dirs[i]]; ok {
			continue
		}
		dir := filepath.Join(itemDir, filepath.FromSlash(dirs[i]))
		children, err := os.ReadDir(dir)
		if err != nil {
			return removed, err
		}
		if len(children) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (p *Pipeline) writeEntry(itemDir, rel string, entry archive.Entry) (int64, error) {
	dest := filepath.Join(itemDir, filepath.FromSlash(rel))

	rc, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	src := &trackedReader{r: rc}
	written, err := fileutil.WriteAtomic(dest, src, filePerm, p.maxEntryBytes)
	switch {
	case err == nil:
		return written, nil
	case src.err != nil:
		return written, services.Wrap(services.ErrCorruptArchive, "extract", "read entry", entry.Name, src.err)
	case errors.Is(err, fileutil.ErrTooLarge):
		return written, services.Wrap(services.ErrWrite, "extract", "write entry", "entry exceeds extract.max_entry_bytes", err)
	default:
		return written, services.Wrap(services.ErrWrite, "extract", "write entry", entry.Name, err)
	}
}

// trackedReader remembers the first non-EOF read error so copy failures can
// be blamed on the source or the destination.
type trackedReader struct {
	r   io.Reader
	err error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
