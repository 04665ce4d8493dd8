package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"voxd-server/internal/dialog"
	platformerrors "voxd-server/internal/platform/errors"
)

// TurnRecord is one persisted conversation turn.
type TurnRecord struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	TS   time.Time `json:"ts"`
}

// Record is the persisted shape of one session's history, matching the
// wire layout of sessions/<id>.json.
type Record struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Turns     []TurnRecord `json:"turns"`
}

// NewRecord builds an empty record for a fresh session id.
func NewRecord(id string) *Record {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	return &Record{ID: id, CreatedAt: now, UpdatedAt: now}
}

// FromTurns converts the dialog engine's retained turns into persisted
// turn records, stamping each with the current time (the engine itself
// does not track per-turn timestamps).
func FromTurns(id string, turns []dialog.Turn) *Record {
	rec := NewRecord(id)
	now := time.Now()
	rec.Turns = make([]TurnRecord, len(turns))
	for i, t := range turns {
		rec.Turns[i] = TurnRecord{Role: string(t.Role), Text: t.Text, TS: now}
	}
	return rec
}

// ToDialogTurns converts persisted turn records back into the dialog
// engine's turn type for History.Restore.
func (r *Record) ToDialogTurns() []dialog.Turn {
	out := make([]dialog.Turn, len(r.Turns))
	for i, t := range r.Turns {
		out[i] = dialog.Turn{Role: dialog.Role(t.Role), Text: t.Text}
	}
	return out
}

// Store persists and loads session history. Implementations must make
// Load best-effort: a missing or corrupt session should return
// (nil, nil) or a sentinel "not found" rather than blocking the caller
// from starting an empty session.
type Store interface {
	Load(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

// FileStore is the mandated baseline persistence layout: one JSON file
// per session, written atomically via write-temp/rename, with corrupt
// files quarantined under a .corrupt suffix instead of blocking startup.
type FileStore struct {
	dir string
}

// NewFileStore builds a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindFatal, "session.file_store", "failed to create session directory", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load reads a session file. A missing file returns (nil, nil) — the
// caller should start with an empty history. A corrupt file is renamed
// with a .corrupt suffix and also returns (nil, nil) rather than an
// error, since a best-effort load should never block a new session.
func (s *FileStore) Load(_ context.Context, id string) (*Record, error) {
	path := s.path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, platformerrors.Wrap(platformerrors.KindTransient, "session.file_store.load", "failed to read session file", err)
	}

	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		_ = os.Rename(path, path+".corrupt")
		return nil, nil
	}
	return &rec, nil
}

// Save writes rec atomically: marshal, write to a temp file in the same
// directory, then rename over the destination.
func (s *FileStore) Save(_ context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now()
	data, err := sonic.Marshal(rec)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindPermanent, "session.file_store.save", "failed to marshal session record", err)
	}

	path := s.path(rec.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransient, "session.file_store.save", "failed to write temp session file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransient, "session.file_store.save", "failed to rename temp session file", err)
	}
	return nil
}
