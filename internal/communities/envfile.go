package communities

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/qepting91/reddit-top/internal/ingest"
)

// EnvKey is the variable that holds the comma-separated community list.
const EnvKey = "TARGET_SUBREDDITS"

// EnvFileStore keeps the list in a dotenv file next to the other settings.
// Other keys in the file are preserved.
type EnvFileStore struct {
	mu   sync.Mutex
	path string
}

func NewEnvFileStore(path string) *EnvFileStore {
	return &EnvFileStore{path: path}
}

func (s *EnvFileStore) Load(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := s.read()
	if err != nil {
		return nil, err
	}
	return ingest.ParseList(env[EnvKey]), nil
}

func (s *EnvFileStore) Append(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.read()
	if err != nil {
		return false, err
	}
	names := ingest.ParseList(env[EnvKey])
	if ingest.Contains(names, name) {
		return false, nil
	}
	env[EnvKey] = strings.Join(append(names, name), ",")
	return true, s.write(env)
}

func (s *EnvFileStore) Remove(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.read()
	if err != nil {
		return false, err
	}
	names := ingest.ParseList(env[EnvKey])
	kept := names[:0:0]
	for _, n := range names {
		if !strings.EqualFold(n, name) {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(names) {
		return false, nil
	}
	env[EnvKey] = strings.Join(kept, ",")
	return true, s.write(env)
}

func (s *EnvFileStore) read() (map[string]string, error) {
	env, err := godotenv.Read(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return env, nil
}

func (s *EnvFileStore) write(env map[string]string) error {
	if err := godotenv.Write(env, s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
