// Package mbox implements the versioned mbox archive engine: folder
// scanning and grouping of archive files, stream lifecycle management,
// message extraction and message framing. One archive file holds one
// version of one mailbox; file names come from the mailname codec.
package mbox

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zimap/mboxarc/mailname"
)

var (
	// ErrNotOpen reports an operation on a store with no open stream.
	ErrNotOpen = errors.New("mbox: no open archive stream")
	// ErrNoMessage reports that the buffer ended before a complete
	// message was extracted. No partial message is returned.
	ErrNoMessage = errors.New("mbox: no complete message in buffer")
	// ErrArgument reports a caller contract violation, as opposed to
	// malformed external data.
	ErrArgument = errors.New("mbox: invalid argument")
	// ErrNotFound reports a missing mailbox archive or path.
	ErrNotFound = errors.New("mbox: not found")
)

// Settings is the process-wide store configuration. It is consulted at
// call time, never snapshotted at startup, so changes apply to the next
// operation immediately.
type Settings struct {
	// BaseFolder resolves relative archive paths.
	BaseFolder string
	// ExcludedChars are escaped in archive file names in addition to
	// the always-escaped characters.
	ExcludedChars string
	// Allow8BitNames keeps [0xa0,0xff] verbatim in file names.
	Allow8BitNames bool
	// KeepVersions makes WriteMailbox create a new version instead of
	// overwriting the latest one.
	KeepVersions bool
}

var (
	settingsMu sync.Mutex
	settings   = Settings{ExcludedChars: mailname.DefaultOptions.Excluded}
)

// Configure replaces the process-wide settings.
func Configure(s Settings) {
	settingsMu.Lock()
	settings = s
	settingsMu.Unlock()
}

// CurrentSettings returns a copy of the process-wide settings.
func CurrentSettings() Settings {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	return settings
}

func nameOptions(s Settings) mailname.Options {
	return mailname.Options{Excluded: s.ExcludedChars, Allow8Bit: s.Allow8BitNames}
}

// MailFile describes one mailbox's on-disk representation as found by a
// folder scan. Decoding FileName with the active delimiter always
// reproduces (MailboxName, Latest).
type MailFile struct {
	MailboxName    string
	FileName       string
	Folder         string
	Latest         uint32
	VersionNumbers []uint32
	VersionNames   []string
}

// Handle identifies one open session. Serial is a per-store generation
// counter: opening anything else invalidates all earlier handles, which
// callers detect through Store.Stale.
type Handle struct {
	Serial uint64
	Path   string
	IsDir  bool
	Write  bool
}

// Store owns at most one open archive stream at a time. Opening a new
// target or closing always releases the prior stream first. A Store is
// not safe for concurrent use.
type Store struct {
	logger *slog.Logger
	serial uint64
	file   *os.File // write stream, nil unless open for writing
	buf    []byte   // read buffer, nil unless open for reading
	off    int
	path   string
}

// NewStore returns an empty store. A nil logger falls back to the
// process default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Open resolves path (relative paths resolve against the base folder)
// to an existing directory, an existing file, or, with allowCreate, a
// newly created empty file or directory. allowFile permits a file
// target; openWrite opens the file stream for appending. Any previously
// open stream is closed first. The returned handle carries the new
// generation serial.
func (s *Store) Open(path string, delim rune, allowFile, openWrite, allowCreate bool) (*Handle, error) {
	_ = delim // reserved for diagnostics; path resolution is name-agnostic

	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrArgument)
	}
	if err := s.Close(); err != nil {
		return nil, err
	}

	abs := s.resolve(path)
	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		if openWrite {
			return nil, fmt.Errorf("mbox: %s is a directory, cannot open for writing", abs)
		}
		return s.newHandle(abs, true, false), nil

	case err == nil:
		if !allowFile {
			return nil, fmt.Errorf("mbox: %s is a file, expected a folder", abs)
		}
		if openWrite {
			file, err := os.OpenFile(abs, os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open archive for append: %w", err)
			}
			s.file = file
			return s.newHandle(abs, false, true), nil
		}
		buf, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("load archive: %w", err)
		}
		s.buf = buf
		return s.newHandle(abs, false, false), nil

	case errors.Is(err, os.ErrNotExist):
		if !allowCreate {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		if !allowFile {
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return nil, fmt.Errorf("create folder: %w", err)
			}
			return s.newHandle(abs, true, false), nil
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create parent folder: %w", err)
		}
		file, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create archive: %w", err)
		}
		if openWrite {
			s.file = file
			return s.newHandle(abs, false, true), nil
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("close new archive: %w", err)
		}
		s.buf = []byte{}
		return s.newHandle(abs, false, false), nil

	default:
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
}

func (s *Store) newHandle(path string, isDir, write bool) *Handle {
	s.serial++
	s.path = path
	s.logger.Debug("archive target opened", "path", path, "dir", isDir, "write", write, "serial", s.serial)
	return &Handle{Serial: s.serial, Path: path, IsDir: isDir, Write: write}
}

// Stale reports whether h was invalidated by a later Open.
func (s *Store) Stale(h *Handle) bool {
	return h == nil || h.Serial != s.serial
}

// Close releases the open stream, if any. Calling Close on an
// already-closed store is a no-op.
func (s *Store) Close() error {
	s.buf = nil
	s.off = 0
	s.path = ""
	if s.file == nil {
		return nil
	}
	file := s.file
	s.file = nil
	if err := file.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// Offset returns the read cursor inside the loaded buffer, so callers
// can persist it and later resume a partially processed archive.
func (s *Store) Offset() int64 {
	return int64(s.off)
}

// SetOffset moves the read cursor. Offsets outside the buffer clamp to
// its bounds.
func (s *Store) SetOffset(off int64) {
	if off < 0 {
		off = 0
	}
	if off > int64(len(s.buf)) {
		off = int64(len(s.buf))
	}
	s.off = int(off)
}

// ParseFolder scans folder (the base folder when empty), decodes every
// file name and groups the results per mailbox, sorted by name and
// version. Files that are no archive files are ignored.
func (s *Store) ParseFolder(folder string, delim rune) ([]MailFile, error) {
	abs := s.resolve(folder)
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("scan folder: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	groups := mailname.GroupNames(names, delim, nameOptions(CurrentSettings()))
	files := make([]MailFile, 0, len(groups))
	for _, g := range groups {
		files = append(files, MailFile{
			MailboxName:    g.Name,
			FileName:       g.VersionNames[len(g.VersionNames)-1],
			Folder:         abs,
			Latest:         g.Latest,
			VersionNumbers: g.VersionNumbers,
			VersionNames:   g.VersionNames,
		})
	}
	return files, nil
}

// ReadMailbox opens the archive of the named mailbox for reading and
// loads its buffer. Version 0 selects the latest version.
func (s *Store) ReadMailbox(name string, version uint32, delim rune) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty mailbox name", ErrArgument)
	}

	files, err := s.ParseFolder("", delim)
	if err != nil {
		return nil, err
	}
	for _, mf := range files {
		if mf.MailboxName != name {
			continue
		}
		fileName := mf.FileName
		if version != 0 {
			fileName = ""
			for i, v := range mf.VersionNumbers {
				if v == version {
					fileName = mf.VersionNames[i]
					break
				}
			}
			if fileName == "" {
				return nil, fmt.Errorf("%w: mailbox %s version %d", ErrNotFound, name, version)
			}
		}
		return s.Open(filepath.Join(mf.Folder, fileName), delim, true, false, false)
	}
	return nil, fmt.Errorf("%w: mailbox %s", ErrNotFound, name)
}

// WriteMailbox opens a fresh archive stream for the named mailbox. With
// KeepVersions set the archive gets the next free version number;
// otherwise the latest version is replaced.
func (s *Store) WriteMailbox(name string, delim rune) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty mailbox name", ErrArgument)
	}

	st := CurrentSettings()
	version := uint32(0)
	if files, err := s.ParseFolder("", delim); err == nil {
		for _, mf := range files {
			if mf.MailboxName != name {
				continue
			}
			if st.KeepVersions {
				if mf.Latest >= mailname.MaxVersion {
					return nil, fmt.Errorf("%w: mailbox %s has no free version left", ErrArgument, name)
				}
				version = mf.Latest + 1
			} else {
				version = mf.Latest
				if err := os.Remove(filepath.Join(mf.Folder, mf.FileName)); err != nil {
					return nil, fmt.Errorf("replace archive: %w", err)
				}
			}
		}
	}

	encoded := mailname.Encode(name, delim, version, nameOptions(st))
	return s.Open(encoded, delim, true, true, true)
}

func (s *Store) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	base := CurrentSettings().BaseFolder
	if base == "" {
		base = "."
	}
	return filepath.Join(base, path)
}
