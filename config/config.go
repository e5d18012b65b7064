package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Config captures all command-line options. Commands register only the
// flag groups they use; LoadConfig reads whatever is present.
type Config struct {
	ArchiveDir     string
	Delimiter      rune
	KeepVersions   bool
	ExcludedChars  string
	Allow8BitNames bool
	Quoted         bool

	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	LegacyUTF7         bool
	Mailboxes          []string
	TargetMailbox      string

	// ForeignMbox imports a single plain mbox file instead of the
	// archive folder.
	ForeignMbox string

	StateDir string
	DryRun   bool

	LogLevel string
	LogDir   string

	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// RegisterLogFlags attaches the logging flags, usually as persistent
// flags on the root command.
func RegisterLogFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (logs also go to stdout)")
}

// RegisterArchiveFlags attaches the flags controlling the archive store.
func RegisterArchiveFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("archive-dir", ".", "Base directory holding the mbox archive files")
	flags.String("delimiter", "/", "Mailbox hierarchy delimiter (one character)")
	flags.Bool("keep-versions", false, "Write a new archive version instead of replacing the latest")
	flags.String("excluded-chars", `\/:*?"<>|`, "Characters escaped in archive file names")
	flags.Bool("allow-8bit-names", false, "Keep Latin-1 characters verbatim in archive file names")
	flags.Bool("quoted", false, "Use From-quoting instead of Content-Length framing when writing archives")
}

// RegisterIMAPFlags attaches the IMAP connection flags and marks the
// required ones.
func RegisterIMAPFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.Bool("legacy-utf7", true, "Encode and decode mailbox names as IMAP modified UTF-7")
	flags.StringArray("mailbox", nil, "Mailbox to process (repeatable; default: all mailboxes)")
	flags.String("target-mailbox", "", "Upload everything into this mailbox instead of the per-message one")

	if err := cmd.MarkFlagRequired("imap-host"); err != nil {
		return err
	}
	return cmd.MarkFlagRequired("imap-user")
}

// RegisterPipelineFlags attaches the flags shared by export and import.
func RegisterPipelineFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("state-dir", defaultStateDir, "Directory for incremental sync state files")
	flags.Bool("dry-run", false, "Simulate the transfer and emit stats without writing")
	RegisterFilterFlags(cmd)
	return nil
}

// RegisterImportFlags attaches the flags only the import command uses.
func RegisterImportFlags(cmd *cobra.Command) {
	cmd.Flags().String("foreign-mbox", "", "Import a single plain mbox file written by another tool")
}

// RegisterFilterFlags attaches the message filter flags.
func RegisterFilterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with
// validation. Flags the command never registered keep their zero value.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	cfg := Config{
		ArchiveDir:         stringFlag(flags, "archive-dir"),
		KeepVersions:       boolFlag(flags, "keep-versions"),
		ExcludedChars:      stringFlag(flags, "excluded-chars"),
		Allow8BitNames:     boolFlag(flags, "allow-8bit-names"),
		Quoted:             boolFlag(flags, "quoted"),
		IMAPHost:           stringFlag(flags, "imap-host"),
		IMAPPort:           intFlag(flags, "imap-port"),
		IMAPUser:           stringFlag(flags, "imap-user"),
		IMAPPass:           stringFlag(flags, "imap-pass"),
		UseTLS:             boolFlag(flags, "use-tls"),
		InsecureSkipVerify: boolFlag(flags, "insecure-skip-verify"),
		LegacyUTF7:         boolFlag(flags, "legacy-utf7"),
		Mailboxes:          arrayFlag(flags, "mailbox"),
		TargetMailbox:      stringFlag(flags, "target-mailbox"),
		ForeignMbox:        stringFlag(flags, "foreign-mbox"),
		StateDir:           stringFlag(flags, "state-dir"),
		DryRun:             boolFlag(flags, "dry-run"),
		LogLevel:           stringFlag(flags, "log-level"),
		LogDir:             stringFlag(flags, "log-dir"),
		IncludeHeader:      arrayFlag(flags, "include-header"),
		IncludeBody:        arrayFlag(flags, "include-body"),
		ExcludeHeader:      arrayFlag(flags, "exclude-header"),
		ExcludeBody:        arrayFlag(flags, "exclude-body"),
	}

	delim := stringFlag(flags, "delimiter")
	if delim == "" {
		delim = "/"
	}
	r, size := utf8.DecodeRuneInString(delim)
	if size != len(delim) || r == utf8.RuneError {
		return Config{}, fmt.Errorf("--delimiter must be a single character, got %q", delim)
	}
	cfg.Delimiter = r

	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}

	if cfg.StateDir != "" {
		cfg.StateDir = filepath.Clean(cfg.StateDir)
	}
	if cfg.ArchiveDir != "" {
		cfg.ArchiveDir = filepath.Clean(cfg.ArchiveDir)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ValidateIMAP checks the fields required to open an IMAP connection.
// Only commands that talk to a server call it.
func (cfg Config) ValidateIMAP() error {
	if cfg.IMAPHost == "" {
		return fmt.Errorf("--imap-host is required")
	}
	if cfg.IMAPUser == "" {
		return fmt.Errorf("--imap-user is required")
	}
	if cfg.IMAPPass == "" {
		return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
	}
	if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	return nil
}

func validateConfig(cfg Config) error {
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func stringFlag(flags *pflag.FlagSet, name string) string {
	if flags.Lookup(name) == nil {
		return ""
	}
	v, _ := flags.GetString(name)
	return v
}

func boolFlag(flags *pflag.FlagSet, name string) bool {
	if flags.Lookup(name) == nil {
		return false
	}
	v, _ := flags.GetBool(name)
	return v
}

func intFlag(flags *pflag.FlagSet, name string) int {
	if flags.Lookup(name) == nil {
		return 0
	}
	v, _ := flags.GetInt(name)
	return v
}

func arrayFlag(flags *pflag.FlagSet, name string) []string {
	if flags.Lookup(name) == nil {
		return nil
	}
	v, _ := flags.GetStringArray(name)
	return v
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mboxarc", "state"), nil
}
