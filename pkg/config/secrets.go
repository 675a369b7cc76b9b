package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/scrypt"

	"github.com/ahmedshikashaker/automaker/pkg/utils"
)

// Secret names stored in the encrypted file. Environment variables of
// the same names serve as fallbacks.
const (
	SecretAnthropicAPIKey = "ANTHROPIC_API_KEY"
	SecretOpenAIAPIKey    = "OPENAI_API_KEY"
	SecretGeminiAPIKey    = "GEMINI_API_KEY"
)

// Encryption parameters for the secrets file:
// [salt][nonce][AES-256-GCM ciphertext+tag], key derived with scrypt.
const (
	saltSize  = 16
	nonceSize = 12
	scryptN   = 32768 // 2^15
	scryptR   = 8
	scryptP   = 1
	keySize   = 32 // AES-256
)

// Secrets holds decrypted credentials in memory. Constructed at startup
// and injected into the provider registry builder.
type Secrets struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSecrets creates an empty secrets holder.
func NewSecrets() *Secrets {
	return &Secrets{values: make(map[string]string)}
}

// Get returns a secret by name with file-then-env precedence. Empty
// string means "not configured".
func (s *Secrets) Get(name string) string {
	if s != nil {
		s.mu.RLock()
		v := s.values[name]
		s.mu.RUnlock()
		if v != "" {
			return v
		}
	}
	return os.Getenv(name)
}

// Set stores a secret in memory; SaveToFile persists it.
func (s *Secrets) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Names returns the names of secrets held in memory.
func (s *Secrets) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	return names
}

// SecretsFileExists reports whether the project has an encrypted secrets
// file.
func SecretsFileExists(projectDir string) bool {
	_, err := os.Stat(utils.SecretsPath(projectDir))
	return err == nil
}

// SaveToFile encrypts the in-memory secrets to the project's secrets
// file.
func (s *Secrets) SaveToFile(projectDir, password string) error {
	s.mu.RLock()
	snapshot := make(map[string]string, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	plaintext, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	if _, err := utils.EnsureAutomakerDir(projectDir); err != nil {
		return err
	}
	path := utils.SecretsPath(projectDir)
	if err := os.WriteFile(path, fileData, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// LoadSecrets decrypts the project's secrets file. A missing file yields
// an empty holder (env fallbacks still apply); a wrong password is an
// error.
func LoadSecrets(projectDir, password string) (*Secrets, error) {
	path := utils.SecretsPath(projectDir)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return NewSecrets(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0o600 {
		// Loose permissions on a credentials file get tightened, not
		// tolerated.
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix secrets file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	minSize := saltSize + nonceSize + 16 // 16 is the GCM tag size
	if len(fileData) < minSize {
		return nil, fmt.Errorf("secrets file is corrupted (too small)")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive decryption key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password or corrupted file)")
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return &Secrets{values: values}, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
