// Package localstore keeps per-user client state that never reaches the
// server: calendar display durations and view preferences.
package localstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/peterbourgon/diskv/v3"
)

// DefaultStateDir is used when the configuration leaves the state dir empty.
const DefaultStateDir = "~/.workboard"

// Store is a namespaced key/value store on disk.
type Store struct {
	d        *diskv.Diskv
	basePath string
}

// Open opens (creating on first write) the store for namespace under stateDir.
// A leading ~ in stateDir is expanded to the user's home directory.
func Open(stateDir, namespace string) (*Store, error) {
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	dir, err := homedir.Expand(stateDir)
	if err != nil {
		return nil, fmt.Errorf("localstore: expand %s: %w", stateDir, err)
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "default"
	}
	if strings.ContainsAny(namespace, `/\`) || namespace == "." || namespace == ".." {
		return nil, fmt.Errorf("localstore: invalid namespace %q", namespace)
	}
	basePath := filepath.Join(dir, namespace)
	return &Store{
		d: diskv.New(diskv.Options{
			BasePath:          basePath,
			AdvancedTransform: keyToPath,
			InverseTransform:  pathToKey,
			CacheSizeMax:      1024 * 1024,
		}),
		basePath: basePath,
	}, nil
}

// BasePath is the directory holding this namespace.
func (s *Store) BasePath() string { return s.basePath }

func (s *Store) read(key string) ([]byte, bool, error) {
	if !s.d.Has(key) {
		return nil, false, nil
	}
	val, err := s.d.Read(key)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *Store) write(key string, val []byte) error {
	return s.d.Write(key, val)
}

func (s *Store) erase(key string) error {
	if !s.d.Has(key) {
		return nil
	}
	return s.d.Erase(key)
}

func (s *Store) keys(ctx context.Context, prefix string) []string {
	var out []string
	for k := range s.d.KeysPrefix(prefix, ctx.Done()) {
		out = append(out, k)
	}
	return out
}

// keys look like `bucket/name`; the bucket becomes a directory.
func keyToPath(key string) *diskv.PathKey {
	bucket, name, ok := strings.Cut(key, "/")
	if !ok {
		return &diskv.PathKey{FileName: key}
	}
	return &diskv.PathKey{Path: []string{bucket}, FileName: name}
}

func pathToKey(pk *diskv.PathKey) string {
	if len(pk.Path) == 0 {
		return pk.FileName
	}
	return strings.Join(pk.Path, "/") + "/" + pk.FileName
}
