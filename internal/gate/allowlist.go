package gate

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultPattern matches allow-list files named <prefix>_users.<ext>.
const DefaultPattern = "*_users.*"

// DirAllowList reads allow-list files from a directory. Each file lists one
// user or machine name per line; blank lines and lines starting with # are
// ignored. Files are consulted in lexical order and the first match wins.
type DirAllowList struct {
	fs      afero.Fs
	dir     string
	pattern string
}

// NewDirAllowList creates an allow list over dir. An empty pattern means
// DefaultPattern.
func NewDirAllowList(fs afero.Fs, dir, pattern string) *DirAllowList {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &DirAllowList{fs: fs, dir: dir, pattern: pattern}
}

// Lookup implements AllowList. An unreachable directory or unreadable file
// is an error; no match is a denied decision with a nil error.
func (a *DirAllowList) Lookup(ctx context.Context, id Identity) (Decision, error) {
	if _, err := a.fs.Stat(a.dir); err != nil {
		return Decision{}, fmt.Errorf("allow-list directory: %w", err)
	}

	files, err := afero.Glob(a.fs, filepath.Join(a.dir, a.pattern))
	if err != nil {
		return Decision{}, fmt.Errorf("list allow-list files: %w", err)
	}
	sort.Strings(files)

	user := fold(id.User)
	machine := fold(id.Machine)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}

		data, err := afero.ReadFile(a.fs, file)
		if err != nil {
			return Decision{}, fmt.Errorf("read allow-list %s: %w", filepath.Base(file), err)
		}
		ok, err := listed(data, user, machine)
		if err != nil {
			return Decision{}, fmt.Errorf("scan allow-list %s: %w", filepath.Base(file), err)
		}
		if ok {
			return Decision{Authorized: true, Prefix: PrefixOf(file), Source: file}, nil
		}
	}
	return Decision{}, nil
}

func listed(data []byte, user, machine string) (bool, error) {
	sc := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry := fold(line)
		if (user != "" && entry == user) || (machine != "" && entry == machine) {
			return true, nil
		}
	}
	return false, sc.Err()
}

// PrefixOf derives the identity prefix from an allow-list file name: the
// file stem up to the first underscore ("ar_users.txt" -> "ar").
func PrefixOf(file string) string {
	base := filepath.Base(file)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	prefix, _, _ := strings.Cut(stem, "_")
	return prefix
}

// fold normalises s for case-insensitive comparison. A Caser is stateful,
// so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
