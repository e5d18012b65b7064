// Package imap implements the server-facing pipeline stages: the
// fetcher that produces messages for archiving and the uploader that
// appends archived messages back into server mailboxes.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/zimap/mboxarc/textcodec"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	// LegacyUTF7 converts mailbox names between Unicode and the IMAP
	// modified UTF-7 wire form.
	LegacyUTF7 bool
	// Mailboxes restricts processing to the named mailboxes; empty
	// means all.
	Mailboxes []string
	// TargetMailbox overrides the per-message mailbox on upload.
	TargetMailbox string
	DryRun        bool
}

func (o Options) validate() error {
	if o.Host == "" {
		return fmt.Errorf("imap host is empty")
	}
	if o.Port <= 0 {
		return fmt.Errorf("imap port must be positive")
	}
	return nil
}

// wireName converts a Unicode mailbox name to its wire form.
func (o Options) wireName(name string) string {
	if !o.LegacyUTF7 {
		return name
	}
	encoded, _ := textcodec.MailboxEncode(name)
	return encoded
}

// displayName converts a wire mailbox name to Unicode.
func (o Options) displayName(name string) string {
	if !o.LegacyUTF7 {
		return name
	}
	decoded, _ := textcodec.MailboxDecode(name)
	return decoded
}

// wantsMailbox reports whether the decoded mailbox name is selected by
// the options.
func (o Options) wantsMailbox(name string) bool {
	if len(o.Mailboxes) == 0 {
		return true
	}
	for _, m := range o.Mailboxes {
		if m == name {
			return true
		}
	}
	return false
}

// dial connects, logs in and arranges for the connection to be torn
// down when ctx is cancelled. The returned cleanup logs out when the
// pipeline is still healthy.
func dial(ctx context.Context, opts Options, logger *slog.Logger) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	clientOpts := &imapclient.Options{}

	if opts.UseTLS {
		clientOpts.TLSConfig = &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if opts.UseTLS {
		client, err = imapclient.DialTLS(address, clientOpts)
	} else {
		client, err = imapclient.DialInsecure(address, clientOpts)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(opts.Username, opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if logger != nil {
		logger.Debug("imap connection established", "address", address, "user", opts.Username, "tls", opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				if logger != nil {
					logger.Warn("imap logout failed", "err", err)
				}
			}
		}
		if err := client.Close(); err != nil && logger != nil {
			logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

// joinFlags renders IMAP flags as the space-separated form the archive
// carries in its private flags header.
func joinFlags(flags []imapv2.Flag) string {
	if len(flags) == 0 {
		return ""
	}
	parts := make([]string, 0, len(flags))
	for _, f := range flags {
		parts = append(parts, string(f))
	}
	return strings.Join(parts, " ")
}

// parseFlags is the inverse of joinFlags. \Recent is dropped because a
// server assigns it itself and rejects it on APPEND.
func parseFlags(text string) []imapv2.Flag {
	var flags []imapv2.Flag
	for _, f := range textcodec.StringArray(text) {
		if strings.EqualFold(f, `\Recent`) {
			continue
		}
		flags = append(flags, imapv2.Flag(f))
	}
	return flags
}
