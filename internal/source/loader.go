// Package source reads raw record collections from a directory of JSON
// documents.
//
// A collection names a file or a glob relative to the data directory and the
// top-level key whose array holds the records. Files are streamed with a
// token-level decoder so a collection is never materialised in memory, and
// every call to Records re-reads from disk.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Collection names the files holding one kind of record and the top-level
// key of the array inside each file.
type Collection struct {
	Name    string
	Pattern string
	Key     string
	// Exclude skips files whose base name contains any of these substrings.
	Exclude []string
	// Optional collections tolerate files that lack Key.
	Optional bool
}

// Loader reads collections below a data directory.
type Loader struct {
	root string
}

// NewLoader returns a MissingSourceError when root is not a directory.
func NewLoader(root string) (*Loader, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingSourceError{Path: root}
		}
		return nil, fmt.Errorf("stat data dir %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, &MissingSourceError{Path: root}
	}
	return &Loader{root: root}, nil
}

func (l *Loader) Root() string {
	return l.root
}

// Files resolves a collection to its files in discovery order.
func (l *Loader) Files(c Collection) ([]string, error) {
	pattern := filepath.Join(l.root, filepath.FromSlash(c.Pattern))

	if !strings.ContainsAny(c.Pattern, "*?[") {
		if _, err := os.Stat(pattern); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &MissingSourceError{Collection: c.Name, Path: pattern}
			}
			return nil, fmt.Errorf("stat %s: %w", pattern, err)
		}
		return []string{pattern}, nil
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("collection %q: bad pattern %q: %w", c.Name, c.Pattern, err)
	}
	sort.Strings(matches)

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if excluded(filepath.Base(m), c.Exclude) {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return nil, &MissingSourceError{Collection: c.Name, Path: pattern}
	}
	return files, nil
}

// Records yields every record of the collection. A source error is yielded
// once with a zero Item and ends the sequence.
func (l *Loader) Records(ctx context.Context, c Collection) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		files, err := l.Files(c)
		if err != nil {
			yield(Item{}, err)
			return
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				yield(Item{}, err)
				return
			}
			if !l.stream(ctx, c, path, yield) {
				return
			}
		}
	}
}

// stream decodes one file and reports whether iteration should continue.
func (l *Loader) stream(ctx context.Context, c Collection, path string, yield func(Item, error) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = &MissingSourceError{Collection: c.Name, Path: path}
		} else {
			err = fmt.Errorf("open %s: %w", path, err)
		}
		yield(Item{}, err)
		return false
	}
	defer func() { _ = f.Close() }()

	malformed := func(err error) bool {
		yield(Item{}, &MalformedSourceError{Collection: c.Name, Path: path, Err: err})
		return false
	}

	dec := json.NewDecoder(bufio.NewReader(f))
	if err := expectDelim(dec, '{'); err != nil {
		return malformed(err)
	}

	found := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return malformed(err)
		}
		key, _ := tok.(string)
		if key != c.Key {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return malformed(fmt.Errorf("key %q: %w", key, err))
			}
			continue
		}

		found = true
		if err := expectDelim(dec, '['); err != nil {
			return malformed(fmt.Errorf("key %q: %w", key, err))
		}
		for index := 0; dec.More(); index++ {
			if err := ctx.Err(); err != nil {
				yield(Item{}, err)
				return false
			}
			var rec map[string]any
			if err := dec.Decode(&rec); err != nil {
				return malformed(fmt.Errorf("%s[%d]: %w", key, index, err))
			}
			item := Item{Record: Record(rec), Collection: c.Name, File: filepath.Base(path), Index: index}
			if !yield(item, nil) {
				return false
			}
		}
		if err := expectDelim(dec, ']'); err != nil {
			return malformed(err)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return malformed(err)
	}

	if !found && !c.Optional {
		return malformed(fmt.Errorf("missing top-level key %q", c.Key))
	}
	return true
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func excluded(name string, substrings []string) bool {
	for _, s := range substrings {
		if s != "" && strings.Contains(name, s) {
			return true
		}
	}
	return false
}
