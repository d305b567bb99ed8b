package repository

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"chat-client/internal/domain"
)

const (
	sessionFileName  = "session.json"
	verifiedFileName = "last_verified_at"
)

var ErrCorruptRecord = errors.New("corrupt credential record")

// FileCredentialStore persiste la sesion en un directorio local. Cada
// escritura va a un archivo temporal que luego se renombra, asi un lector
// nunca ve un registro a medias.
type FileCredentialStore struct {
	dir    string
	aead   aeadCipher
	logger *zap.Logger
	mu     sync.RWMutex
}

type aeadCipher interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewFileCredentialStore crea el directorio si no existe. Con key no vacia el
// registro de sesion se cifra con XChaCha20-Poly1305.
func NewFileCredentialStore(dir string, key []byte, logger *zap.Logger) (*FileCredentialStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("credential dir is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	store := &FileCredentialStore{dir: dir, logger: logger}
	if len(key) > 0 {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("init cipher: %w", err)
		}
		store.aead = aead
	}
	return store, nil
}

// DeriveKey convierte una frase secreta en una clave de 32 bytes.
// salt debe ser estable por instalacion.
func DeriveKey(secret, salt string) []byte {
	if secret == "" {
		return nil
	}
	return argon2.IDKey([]byte(secret), []byte("chat-client:"+salt), 1, 64*1024, 4, chacha20poly1305.KeySize)
}

func (s *FileCredentialStore) Read(ctx context.Context) (*domain.Session, error) {
	s.mu.RLock()
	raw, err := os.ReadFile(s.path(sessionFileName))
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	session, err := s.decode(raw)
	if err != nil {
		s.logger.Warn("corrupt session record, clearing", zap.String("dir", s.dir), zap.Error(err))
		if clearErr := s.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}
	return session, nil
}

func (s *FileCredentialStore) Write(_ context.Context, session domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if s.aead != nil {
		payload, err = s.seal(payload)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(sessionFileName, payload)
}

func (s *FileCredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{sessionFileName, verifiedFileName} {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	return nil
}

func (s *FileCredentialStore) VerifiedAt(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	raw, err := os.ReadFile(s.path(verifiedFileName))
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read verification: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		s.logger.Warn("corrupt verification record, clearing", zap.String("dir", s.dir), zap.Error(err))
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := os.Remove(s.path(verifiedFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, fmt.Errorf("repair verification: %w", err)
		}
		return time.Time{}, false, nil
	}
	return at, true, nil
}

func (s *FileCredentialStore) MarkVerifiedAt(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.IsZero() {
		if err := os.Remove(s.path(verifiedFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reset verification: %w", err)
		}
		return nil
	}
	return s.writeAtomic(verifiedFileName, []byte(at.UTC().Format(time.RFC3339Nano)))
}

func (s *FileCredentialStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *FileCredentialStore) writeAtomic(name string, payload []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (s *FileCredentialStore) decode(raw []byte) (*domain.Session, error) {
	if s.aead != nil {
		var err error
		raw, err = s.open(raw)
		if err != nil {
			return nil, err
		}
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &session, nil
}

func (s *FileCredentialStore) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *FileCredentialStore) open(sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrCorruptRecord
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return plain, nil
}
