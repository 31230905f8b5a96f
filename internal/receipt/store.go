package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/zombor/ahorro/internal/media"
)

const (
	payloadDir    = "payloads"
	thumbnailDir  = "thumbnails"
	indexFileName = "receipts.json"
	journalFile   = "journal.db"
	appDirName    = "ahorro"
)

var (
	// ErrIndexCorrupt means receipts.json exists but cannot be parsed
	ErrIndexCorrupt = errors.New("receipt index is corrupt")
	// ErrNotFound means no receipt has the requested id
	ErrNotFound = errors.New("receipt not found")
	// ErrDeleteFailed means the payload could not be removed; the receipt is kept
	ErrDeleteFailed = errors.New("deleting receipt payload failed")
	// ErrPersistMetadata means the index could not be rewritten
	ErrPersistMetadata = errors.New("writing receipt index failed")
	// ErrFileNameConflict means another receipt already stores a file under that name
	ErrFileNameConflict = errors.New("file name already used by another receipt")
)

// indexDocument is the on-disk shape of receipts.json
type indexDocument struct {
	Receipts []*Receipt `json:"receipts"`
}

// Store is the durable receipt collection. The in-memory mirror is the
// source of truth for reads; every mutation rewrites the index atomically.
type Store struct {
	mu         sync.RWMutex
	root       string
	receipts   map[string]*Receipt
	version    uint64
	payloads   Storage
	thumbnails Storage
	journal    Journal
	logger     *slog.Logger

	// writeIndex replaces the index file; tests swap it to inject failures
	writeIndex func(path string, data []byte) error
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithLogger sets the store's logger
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithPayloadStorage replaces the payload file area
func WithPayloadStorage(storage Storage) StoreOption {
	return func(s *Store) {
		s.payloads = storage
	}
}

// WithThumbnailStorage replaces the thumbnail file area
func WithThumbnailStorage(storage Storage) StoreOption {
	return func(s *Store) {
		s.thumbnails = storage
	}
}

// WithJournal replaces the recovery journal
func WithJournal(journal Journal) StoreOption {
	return func(s *Store) {
		s.journal = journal
	}
}

// DefaultRoot returns the per-user application data directory
func DefaultRoot() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	return filepath.Join(dir, appDirName), nil
}

// Open loads the store rooted at root, creating its layout when missing.
// Pending journal entries are reconciled before Open returns.
func Open(root string, opts ...StoreOption) (*Store, error) {
	if root == "" {
		var err error
		if root, err = DefaultRoot(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}

	s := &Store{
		root:       root,
		receipts:   make(map[string]*Receipt),
		logger:     slog.Default(),
		writeIndex: writeFileAtomic,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.payloads == nil {
		if s.payloads, err = NewLocalStorage(filepath.Join(root, payloadDir)); err != nil {
			return nil, err
		}
	}
	if s.thumbnails == nil {
		if s.thumbnails, err = NewLocalStorage(filepath.Join(root, thumbnailDir)); err != nil {
			return nil, err
		}
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}

	if s.journal == nil {
		if s.journal, err = NewBoltJournal(filepath.Join(root, journalFile)); err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
	}
	if err := s.reconcile(); err != nil {
		s.journal.Close()
		return nil, err
	}

	s.logger.Info("Receipt store opened", "root", root, "receipts", len(s.receipts))
	return s, nil
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading index: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexCorrupt, err)
	}
	for _, r := range doc.Receipts {
		if r == nil || r.ID == "" {
			return fmt.Errorf("%w: receipt without id", ErrIndexCorrupt)
		}
		s.receipts[r.ID] = r
	}
	return nil
}

// reconcile replays journal entries left by an interrupted mutation
func (s *Store) reconcile() error {
	entries, err := s.journal.Pending()
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	dirty := false
	for _, e := range entries {
		s.logger.Warn("Reconciling interrupted mutation", "op", e.Op, "id", e.ID, "file_name", e.FileName)
		switch e.Op {
		case OpPersist:
			if e.FileName != "" && !s.fileNameInUse(e.FileName, "") {
				s.removeFile(s.payloads, e.FileName)
			}
			if _, ok := s.receipts[e.ID]; !ok {
				s.removeFile(s.thumbnails, thumbnailName(e.ID))
			}
		case OpDelete:
			r, ok := s.receipts[e.ID]
			if !ok {
				continue
			}
			delete(s.receipts, e.ID)
			s.removeFile(s.payloads, r.FileName)
			s.removeFile(s.thumbnails, thumbnailName(e.ID))
			dirty = true
		}
	}

	if dirty {
		if err := s.saveIndex(); err != nil {
			return fmt.Errorf("completing pending deletes: %w", err)
		}
	}
	if err := s.journal.Clear(); err != nil {
		return fmt.Errorf("clearing journal: %w", err)
	}
	return nil
}

// Close releases the journal
func (s *Store) Close() error {
	return s.journal.Close()
}

// Root returns the directory the store lives in
func (s *Store) Root() string {
	return s.root
}

// Version increases with every committed mutation
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// List returns copies of all receipts, newest purchase first
func (s *Store) List() []*Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := s.sorted()
	for i, r := range receipts {
		receipts[i] = r.Clone()
	}
	return receipts
}

// Get returns a copy of the receipt with the given id
func (s *Store) Get(id string) (*Receipt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Persist writes the payload and thumbnail, then inserts or replaces the
// receipt and rewrites the index. It returns the stored copy with its file
// paths filled in.
func (s *Store) Persist(r *Receipt, payload []byte, thumbnail image.Image) (*Receipt, error) {
	if r == nil || r.ID == "" {
		return nil, errors.New("receipt id is required")
	}
	if r.FileName == "" || r.FileName != filepath.Base(r.FileName) {
		return nil, fmt.Errorf("invalid file name %q", r.FileName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileNameInUse(r.FileName, r.ID) {
		return nil, fmt.Errorf("%w: %s", ErrFileNameConflict, r.FileName)
	}

	previous := s.receipts[r.ID]
	seq, err := s.journal.Begin(JournalEntry{Op: OpPersist, ID: r.ID, FileName: r.FileName})
	if err != nil {
		return nil, fmt.Errorf("journaling persist: %w", err)
	}

	var backup *fileBackup
	if previous != nil {
		backup = s.backupFiles(previous, r.FileName)
	}

	stored := r.Clone()
	name, err := s.payloads.Save(stored.FileName, payload)
	if err != nil {
		s.complete(seq)
		return nil, fmt.Errorf("saving payload: %w", err)
	}
	stored.FilePath = path.Join(payloadDir, name)
	stored.ThumbnailPath = s.saveThumbnail(stored.ID, thumbnail)

	s.receipts[stored.ID] = stored
	if err := s.saveIndex(); err != nil {
		if previous == nil {
			delete(s.receipts, stored.ID)
		} else {
			s.receipts[stored.ID] = previous
			s.restoreFiles(previous, stored, backup)
		}
		s.logger.Error("Failed to write receipt index", "id", stored.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistMetadata, err)
	}
	s.complete(seq)
	s.version++

	if previous != nil {
		if previous.FileName != stored.FileName {
			s.removeFile(s.payloads, previous.FileName)
		}
		if previous.ThumbnailPath != "" && stored.ThumbnailPath == "" {
			s.removeFile(s.thumbnails, thumbnailName(previous.ID))
		}
	}

	s.logger.Info("Receipt persisted", "id", stored.ID, "file_name", stored.FileName, "thumbnail", stored.ThumbnailPath != "")
	return stored.Clone(), nil
}

// Delete removes the receipt, its payload and its thumbnail
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receipts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	seq, err := s.journal.Begin(JournalEntry{Op: OpDelete, ID: id, FileName: r.FileName})
	if err != nil {
		return fmt.Errorf("journaling delete: %w", err)
	}

	if err := s.payloads.Delete(r.FileName); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.complete(seq)
			return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
		}
		s.logger.Warn("Receipt payload already missing", "id", id, "file_name", r.FileName)
	}
	if r.ThumbnailPath != "" {
		s.removeFile(s.thumbnails, thumbnailName(id))
	}

	delete(s.receipts, id)
	s.version++
	if err := s.saveIndex(); err != nil {
		s.logger.Error("Failed to write receipt index", "id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrPersistMetadata, err)
	}
	s.complete(seq)

	s.logger.Info("Receipt deleted", "id", id)
	return nil
}

// Path resolves a path relative to the store root
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// ReadPayload returns the stored media of a receipt
func (s *Store) ReadPayload(r *Receipt) ([]byte, error) {
	data, err := s.payloads.Get(r.FileName)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return data, nil
}

// ReadThumbnail returns the stored JPEG thumbnail of a receipt
func (s *Store) ReadThumbnail(r *Receipt) ([]byte, error) {
	if r.ThumbnailPath == "" {
		return nil, fmt.Errorf("%w: no thumbnail", fs.ErrNotExist)
	}
	data, err := s.thumbnails.Get(thumbnailName(r.ID))
	if err != nil {
		return nil, fmt.Errorf("reading thumbnail: %w", err)
	}
	return data, nil
}

// fileBackup holds the bytes a replacement is about to overwrite
type fileBackup struct {
	payload   []byte
	thumbnail []byte
}

// backupFiles reads the files of previous that a persist under fileName
// overwrites in place. Unreadable files are skipped.
func (s *Store) backupFiles(previous *Receipt, fileName string) *fileBackup {
	backup := &fileBackup{}
	if previous.FileName == fileName {
		data, err := s.payloads.Get(previous.FileName)
		if err != nil {
			s.logger.Warn("Failed to back up payload", "id", previous.ID, "error", err)
		} else {
			backup.payload = data
		}
	}
	if previous.ThumbnailPath != "" {
		data, err := s.thumbnails.Get(thumbnailName(previous.ID))
		if err != nil {
			s.logger.Warn("Failed to back up thumbnail", "id", previous.ID, "error", err)
		} else {
			backup.thumbnail = data
		}
	}
	return backup
}

// restoreFiles puts back what a failed replacement overwrote
func (s *Store) restoreFiles(previous, failed *Receipt, backup *fileBackup) {
	if backup.payload != nil {
		if _, err := s.payloads.Save(previous.FileName, backup.payload); err != nil {
			s.logger.Error("Failed to restore payload", "id", previous.ID, "error", err)
		}
	}
	switch {
	case backup.thumbnail != nil:
		if _, err := s.thumbnails.Save(thumbnailName(previous.ID), backup.thumbnail); err != nil {
			s.logger.Error("Failed to restore thumbnail", "id", previous.ID, "error", err)
		}
	case previous.ThumbnailPath == "" && failed.ThumbnailPath != "":
		s.removeFile(s.thumbnails, thumbnailName(previous.ID))
	}
}

func (s *Store) saveThumbnail(id string, thumbnail image.Image) string {
	if thumbnail == nil {
		return ""
	}
	data, err := media.EncodeJPEG(thumbnail, media.ThumbnailQuality)
	if err != nil {
		s.logger.Warn("Failed to encode thumbnail", "id", id, "error", err)
		return ""
	}
	name, err := s.thumbnails.Save(thumbnailName(id), data)
	if err != nil {
		s.logger.Warn("Failed to save thumbnail", "id", id, "error", err)
		return ""
	}
	return path.Join(thumbnailDir, name)
}

// saveIndex rewrites receipts.json from the mirror. Callers hold the write lock.
func (s *Store) saveIndex() error {
	data, err := json.MarshalIndent(indexDocument{Receipts: s.sorted()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return s.writeIndex(s.indexPath(), data)
}

// sorted returns the mirror's receipts by sort date descending, then id
func (s *Store) sorted() []*Receipt {
	receipts := make([]*Receipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		receipts = append(receipts, r)
	}
	slices.SortFunc(receipts, func(a, b *Receipt) int {
		if c := b.SortDate().Compare(a.SortDate()); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return receipts
}

func (s *Store) fileNameInUse(name, exceptID string) bool {
	for id, r := range s.receipts {
		if id != exceptID && r.FileName == name {
			return true
		}
	}
	return false
}

func (s *Store) removeFile(storage Storage, name string) {
	if err := storage.Delete(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove file", "file_name", name, "error", err)
	}
}

func (s *Store) complete(seq uint64) {
	if err := s.journal.Complete(seq); err != nil {
		s.logger.Warn("Failed to complete journal entry", "seq", seq, "error", err)
	}
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, indexFileName)
}

func thumbnailName(id string) string {
	return id + ".jpg"
}
