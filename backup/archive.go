package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	ManifestName = "manifest.json"

	snapshotExt         = ".json"
	defaultParallelism  = 4
	maxSnapshotFileSize = 512 << 20
)

var tracer = otel.Tracer("assets_backend/backup")

// Source is the read side of the document store.
type Source interface {
	CollectionNames(ctx context.Context) ([]string, error)
	FindAll(ctx context.Context, collection string) ([]models.Document, error)
}

// Uploader ships a finished archive off-site.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

type Manifest struct {
	CreatedAt   time.Time       `json:"created_at"`
	Collections []ManifestEntry `json:"collections"`
}

type ManifestEntry struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}

type CollectionSnapshot struct {
	Name      string
	Documents []models.Document
}

// Archive is a backup read back into memory.
type Archive struct {
	Manifest    Manifest
	Collections []CollectionSnapshot
}

func (a *Archive) Collection(name string) (CollectionSnapshot, bool) {
	for _, c := range a.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return CollectionSnapshot{}, false
}

// Archiver dumps every collection into one zip archive.
type Archiver struct {
	source      Source
	dir         string
	uploader    Uploader
	parallelism int
	now         func() time.Time
	logger      *logrus.Logger

	mu          sync.Mutex
	collections []string
}

func NewArchiver(source Source, dir string, logger *logrus.Logger) *Archiver {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Archiver{
		source:      source,
		dir:         dir,
		parallelism: defaultParallelism,
		now:         time.Now,
		logger:      logger,
	}
}

// WithUploader enables the off-site copy of every archive.
func (a *Archiver) WithUploader(u Uploader) *Archiver {
	a.uploader = u
	return a
}

func (a *Archiver) Dir() string {
	return a.dir
}

// Collections returns the collection names, enumerating the store only until
// the first success.
func (a *Archiver) Collections(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.collections != nil {
		return a.collections, nil
	}
	names, err := a.source.CollectionNames(ctx)
	if err != nil {
		return nil, err
	}
	a.collections = append([]string{}, names...)
	return a.collections, nil
}

// Snapshot writes a fresh archive and returns its path. It only reads from the
// store; documents written while it runs may or may not be included.
func (a *Archiver) Snapshot(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "backup.Snapshot")
	defer span.End()

	names, err := a.Collections(ctx)
	if err != nil {
		span.RecordError(err)
		return "", &utils.ArchiveIOError{Op: "enumerate", Err: err}
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", &utils.ArchiveIOError{Op: "mkdir", Path: a.dir, Err: err}
	}

	createdAt := a.now().UTC()
	stamp := createdAt.Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
	staging, err := os.MkdirTemp(a.dir, "staging-"+stamp+"-")
	if err != nil {
		return "", &utils.ArchiveIOError{Op: "mkdir", Path: a.dir, Err: err}
	}
	defer os.RemoveAll(staging)

	counts := make([]int, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			docs, err := a.source.FindAll(gctx, name)
			if err != nil {
				return &utils.ArchiveIOError{Op: "read", Path: name, Err: err}
			}
			counts[i] = len(docs)
			return writeJSONFile(filepath.Join(staging, name+snapshotExt), docs)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return "", err
	}

	manifest := Manifest{CreatedAt: createdAt, Collections: make([]ManifestEntry, len(names))}
	for i, name := range names {
		manifest.Collections[i] = ManifestEntry{Name: name, Documents: counts[i]}
	}
	if err := writeJSONFile(filepath.Join(staging, ManifestName), manifest); err != nil {
		return "", err
	}

	archivePath := filepath.Join(a.dir, "backup-"+stamp+".zip")
	files := append([]string{ManifestName}, snapshotFileNames(names)...)
	if err := packageDir(staging, files, archivePath); err != nil {
		_ = os.Remove(archivePath)
		span.RecordError(err)
		return "", &utils.ArchiveIOError{Op: "package", Path: archivePath, Err: err}
	}
	span.SetAttributes(attribute.Int("backup.collections", len(names)))

	a.logger.WithFields(logrus.Fields{
		"field":       "backup",
		"archive":     archivePath,
		"collections": len(names),
	}).Info("backup archive written")

	if a.uploader != nil {
		object, err := a.uploader.Upload(ctx, archivePath)
		if err != nil {
			// the local archive is complete; the off-site copy is best effort
			config.LogError(a.logger, "archive.go", "Snapshot", "off-site upload", archivePath, err)
		} else {
			a.logger.WithFields(logrus.Fields{"field": "backup", "object": object}).Info("backup archive uploaded")
		}
	}
	return archivePath, nil
}

func snapshotFileNames(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = name + snapshotExt
	}
	return out
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return &utils.ArchiveIOError{Op: "write", Path: path, Err: err}
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return &utils.ArchiveIOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &utils.ArchiveIOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func packageDir(dir string, files []string, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	for _, name := range files {
		if err := addFile(zw, filepath.Join(dir, name), name); err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addFile(zw *zip.Writer, path string, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// ReadArchive opens an archive written by Snapshot.
func ReadArchive(path string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, &utils.ArchiveIOError{Op: "open", Path: path, Err: err}
	}
	defer r.Close()
	return readZip(&r.Reader)
}

// ReadArchiveFrom reads an archive from an uploaded body.
func ReadArchiveFrom(ra io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, &utils.ArchiveIOError{Op: "open", Err: err}
	}
	return readZip(zr)
}

func readZip(zr *zip.Reader) (*Archive, error) {
	var manifest *Manifest
	snapshots := map[string][]models.Document{}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if strings.Contains(name, "/") || filepath.Ext(name) != snapshotExt {
			return nil, &utils.ArchiveIOError{Op: "read", Path: name, Err: fmt.Errorf("unexpected file in archive")}
		}
		if name == ManifestName {
			var m Manifest
			if err := decodeZipFile(f, &m); err != nil {
				return nil, err
			}
			manifest = &m
			continue
		}

		collection := strings.TrimSuffix(name, snapshotExt)
		if !validCollectionName(collection) {
			return nil, &utils.ArchiveIOError{Op: "read", Path: name, Err: fmt.Errorf("invalid collection name")}
		}
		var docs []models.Document
		if err := decodeZipFile(f, &docs); err != nil {
			return nil, err
		}
		for i, doc := range docs {
			if doc.ID() == "" {
				return nil, &utils.ArchiveIOError{Op: "read", Path: name, Err: fmt.Errorf("document %d has no %s", i, models.IdentifierField)}
			}
		}
		snapshots[collection] = docs
	}

	archive := &Archive{}
	if manifest == nil {
		// archives without a manifest are accepted; collections come back sorted
		names := make([]string, 0, len(snapshots))
		for name := range snapshots {
			names = append(names, name)
		}
		sort.Strings(names)
		manifest = &Manifest{}
		for _, name := range names {
			manifest.Collections = append(manifest.Collections, ManifestEntry{Name: name, Documents: len(snapshots[name])})
		}
	}
	archive.Manifest = *manifest

	for _, entry := range manifest.Collections {
		docs, ok := snapshots[entry.Name]
		if !ok {
			return nil, &utils.ArchiveIOError{Op: "read", Path: entry.Name + snapshotExt, Err: fmt.Errorf("listed in manifest but missing")}
		}
		if len(docs) != entry.Documents {
			return nil, &utils.ArchiveIOError{Op: "read", Path: entry.Name + snapshotExt, Err: fmt.Errorf("manifest lists %d documents, file has %d", entry.Documents, len(docs))}
		}
		archive.Collections = append(archive.Collections, CollectionSnapshot{Name: entry.Name, Documents: docs})
		delete(snapshots, entry.Name)
	}
	if len(snapshots) > 0 {
		extra := make([]string, 0, len(snapshots))
		for name := range snapshots {
			extra = append(extra, name+snapshotExt)
		}
		sort.Strings(extra)
		return nil, &utils.ArchiveIOError{Op: "read", Path: strings.Join(extra, ","), Err: fmt.Errorf("not listed in manifest")}
	}
	return archive, nil
}

func decodeZipFile(f *zip.File, dest any) error {
	if f.UncompressedSize64 > maxSnapshotFileSize {
		return &utils.ArchiveIOError{Op: "read", Path: f.Name, Err: fmt.Errorf("file exceeds %d bytes", maxSnapshotFileSize)}
	}
	rc, err := f.Open()
	if err != nil {
		return &utils.ArchiveIOError{Op: "read", Path: f.Name, Err: err}
	}
	defer rc.Close()
	dec := json.NewDecoder(io.LimitReader(rc, maxSnapshotFileSize))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return &utils.ArchiveIOError{Op: "decode", Path: f.Name, Err: err}
	}
	return nil
}

func validCollectionName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
