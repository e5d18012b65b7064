package mbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zimap/mboxarc/mailname"
)

func configureForTest(t *testing.T, s Settings) {
	t.Helper()
	prev := CurrentSettings()
	Configure(s)
	t.Cleanup(func() { Configure(prev) })
}

func TestOpenLifecycleAndStale(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	h1, err := s.Open(dir, '/', false, false, false)
	if err != nil {
		t.Fatalf("Open dir: %v", err)
	}
	if !h1.IsDir || h1.Write {
		t.Errorf("dir handle = %+v", h1)
	}
	if s.Stale(h1) {
		t.Error("fresh handle reported stale")
	}

	h2, err := s.Open(filepath.Join(dir, "new-archive"), '/', true, false, true)
	if err != nil {
		t.Fatalf("Open new file: %v", err)
	}
	if h2.IsDir || h2.Serial <= h1.Serial {
		t.Errorf("file handle = %+v after %+v", h2, h1)
	}
	if !s.Stale(h1) {
		t.Error("superseded handle not stale")
	}
	if s.Stale(h2) {
		t.Error("current handle reported stale")
	}
	if !s.Stale(nil) {
		t.Error("nil handle not stale")
	}

	// A freshly created archive is empty.
	if _, err := s.ReadMail(); !errors.Is(err, ErrNoMessage) {
		t.Errorf("ReadMail on empty archive err = %v, want ErrNoMessage", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	if _, err := s.Open("", '/', true, false, false); !errors.Is(err, ErrArgument) {
		t.Errorf("empty path err = %v, want ErrArgument", err)
	}
	missing := filepath.Join(dir, "missing")
	if _, err := s.Open(missing, '/', true, false, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing path err = %v, want ErrNotFound", err)
	}
	if _, err := s.Open(dir, '/', true, true, false); err == nil {
		t.Error("opening a directory for writing succeeded")
	}

	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open(file, '/', false, false, false); err == nil {
		t.Error("opening a file with allowFile=false succeeded")
	}
}

func TestSetOffsetClamps(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "archive")
	if err := os.WriteFile(file, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(nil)
	if _, err := s.Open(file, '/', true, false, false); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.SetOffset(-5)
	if s.Offset() != 0 {
		t.Errorf("Offset after negative set = %d", s.Offset())
	}
	s.SetOffset(99)
	if s.Offset() != 3 {
		t.Errorf("Offset after oversized set = %d", s.Offset())
	}
}

func writeOneMail(t *testing.T, s *Store, body string) {
	t.Helper()
	if err := s.WriteMail("a@b", testDate, "", []byte("Subject: t\r\n"), []byte(body), false); err != nil {
		t.Fatalf("WriteMail: %v", err)
	}
}

func readOneMail(t *testing.T, s *Store) string {
	t.Helper()
	msg, err := s.ReadMail()
	if err != nil {
		t.Fatalf("ReadMail: %v", err)
	}
	return string(msg.Raw)
}

func TestMailboxVersioning(t *testing.T) {
	base := t.TempDir()
	configureForTest(t, Settings{
		BaseFolder:    base,
		ExcludedChars: mailname.DefaultOptions.Excluded,
		KeepVersions:  true,
	})
	s := NewStore(nil)

	if _, err := s.WriteMailbox("Drafts/Old", '/'); err != nil {
		t.Fatalf("first WriteMailbox: %v", err)
	}
	writeOneMail(t, s, "one")

	if _, err := s.WriteMailbox("Drafts/Old", '/'); err != nil {
		t.Fatalf("second WriteMailbox: %v", err)
	}
	writeOneMail(t, s, "two")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := s.ParseFolder("", '/')
	if err != nil {
		t.Fatalf("ParseFolder: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("ParseFolder returned %d groups, want 1", len(files))
	}
	mf := files[0]
	if mf.MailboxName != "Drafts/Old" || mf.Latest != 1 {
		t.Errorf("group = %+v", mf)
	}
	if len(mf.VersionNumbers) != 2 || mf.VersionNumbers[0] != 0 || mf.VersionNumbers[1] != 1 {
		t.Errorf("VersionNumbers = %v", mf.VersionNumbers)
	}
	if mf.FileName != "Drafts_~Old_^1_" {
		t.Errorf("FileName = %q", mf.FileName)
	}

	// Version 0 selects the latest archive.
	if _, err := s.ReadMailbox("Drafts/Old", 0, '/'); err != nil {
		t.Fatalf("ReadMailbox latest: %v", err)
	}
	if got := readOneMail(t, s); got != "Subject: t\r\n\r\ntwo" {
		t.Errorf("latest Raw = %q", got)
	}

	if _, err := s.ReadMailbox("Drafts/Old", 7, '/'); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown version err = %v, want ErrNotFound", err)
	}
	if _, err := s.ReadMailbox("Nothing", 0, '/'); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown mailbox err = %v, want ErrNotFound", err)
	}
	if _, err := s.ReadMailbox("", 0, '/'); !errors.Is(err, ErrArgument) {
		t.Errorf("empty name err = %v, want ErrArgument", err)
	}
}

func TestWriteMailboxReplacesLatest(t *testing.T) {
	base := t.TempDir()
	configureForTest(t, Settings{
		BaseFolder:    base,
		ExcludedChars: mailname.DefaultOptions.Excluded,
		KeepVersions:  false,
	})
	s := NewStore(nil)

	if _, err := s.WriteMailbox("Inbox", '/'); err != nil {
		t.Fatalf("first WriteMailbox: %v", err)
	}
	writeOneMail(t, s, "old")

	if _, err := s.WriteMailbox("Inbox", '/'); err != nil {
		t.Fatalf("second WriteMailbox: %v", err)
	}
	writeOneMail(t, s, "new")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := s.ParseFolder("", '/')
	if err != nil {
		t.Fatalf("ParseFolder: %v", err)
	}
	if len(files) != 1 || len(files[0].VersionNumbers) != 1 {
		t.Fatalf("groups = %+v, want one single-version group", files)
	}

	if _, err := s.ReadMailbox("Inbox", 0, '/'); err != nil {
		t.Fatalf("ReadMailbox: %v", err)
	}
	if got := readOneMail(t, s); got != "Subject: t\r\n\r\nnew" {
		t.Errorf("Raw = %q", got)
	}
}

func TestWriteMailboxVersionExhausted(t *testing.T) {
	base := t.TempDir()
	configureForTest(t, Settings{
		BaseFolder:    base,
		ExcludedChars: mailname.DefaultOptions.Excluded,
		KeepVersions:  true,
	})

	full := mailname.Encode("Full", '/', mailname.MaxVersion, mailname.DefaultOptions)
	if err := os.WriteFile(filepath.Join(base, full), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(nil)
	if _, err := s.WriteMailbox("Full", '/'); !errors.Is(err, ErrArgument) {
		t.Errorf("WriteMailbox past the last version err = %v, want ErrArgument", err)
	}
}

func TestParseFolderSkipsForeignFiles(t *testing.T) {
	base := t.TempDir()
	configureForTest(t, Settings{
		BaseFolder:    base,
		ExcludedChars: mailname.DefaultOptions.Excluded,
	})
	for _, name := range []string{"Good", "bad_", "Also_^2_"} {
		if err := os.WriteFile(filepath.Join(base, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(base, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	s := NewStore(nil)
	files, err := s.ParseFolder("", '/')
	if err != nil {
		t.Fatalf("ParseFolder: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("groups = %+v, want 2", files)
	}
	if files[0].MailboxName != "Also" || files[0].Latest != 2 {
		t.Errorf("first group = %+v", files[0])
	}
	if files[1].MailboxName != "Good" || files[1].Latest != 0 {
		t.Errorf("second group = %+v", files[1])
	}
}
