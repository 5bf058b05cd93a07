package service

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/efreitasn/tradesim/internal/domain"
	"github.com/efreitasn/tradesim/internal/store"
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ImportResult summarizes a registry import.
type ImportResult struct {
	Registered int
	Skipped    int
}

// UserService handles registration, authentication and the plain-text
// registry import/export.
type UserService struct {
	store       *store.UserStore
	initialCash int64
	cost        int
	now         func() time.Time
}

// NewUserService creates a UserService. New accounts start with
// initialCash cents; passwords are hashed with the given bcrypt cost.
func NewUserService(store *store.UserStore, initialCash int64, bcryptCost int) *UserService {
	return &UserService{
		store:       store,
		initialCash: initialCash,
		cost:        bcryptCost,
		now:         time.Now,
	}
}

// Register validates the credentials and creates a user with a fresh
// account.
func (s *UserService) Register(username, password string) (*domain.User, error) {
	if password == "" {
		return nil, &domain.ValidationError{Message: "password is required"}
	}
	if len(password) > 72 {
		return nil, &domain.ValidationError{Message: "password must be at most 72 bytes"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.create(username, hash)
}

func (s *UserService) create(username string, hash []byte) (*domain.User, error) {
	if !usernameRegex.MatchString(username) {
		return nil, &domain.ValidationError{
			Message: "username must match ^[A-Za-z0-9_.-]{1,64}$",
		}
	}
	if s.store.Exists(username) {
		return nil, domain.ErrDuplicateUsername
	}

	u := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Account:      domain.NewAccount(username, s.initialCash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate returns the user when password matches. Unknown users and
// wrong passwords both yield domain.ErrInvalidCredentials.
func (s *UserService) Authenticate(username, password string) (*domain.User, error) {
	u, err := s.store.Get(username)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return u, nil
}

// Import registers users from the file at path.
func (s *UserService) Import(path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %s: %v", domain.ErrFileUnavailable, path, err)
	}
	defer f.Close()
	return s.ImportFrom(f)
}

// ImportFrom reads whitespace-separated "username credential" pairs and
// registers each one. A credential that already is a bcrypt hash is kept
// as-is; anything else is hashed as a plaintext password. Duplicate or
// invalid pairs are skipped, and a trailing lone token is ignored.
func (s *UserService) ImportFrom(r io.Reader) (ImportResult, error) {
	var res ImportResult

	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		username := sc.Text()
		if !sc.Scan() {
			break
		}
		credential := sc.Text()

		var err error
		if _, costErr := bcrypt.Cost([]byte(credential)); costErr == nil {
			_, err = s.create(username, []byte(credential))
		} else {
			_, err = s.Register(username, credential)
		}
		if err != nil {
			var ve *domain.ValidationError
			if errors.Is(err, domain.ErrDuplicateUsername) || errors.As(err, &ve) {
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Registered++
	}
	return res, sc.Err()
}

// Export writes the registry to the file at path, replacing its contents.
func (s *UserService) Export(path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrFileUnavailable, path, err)
	}
	n, err := s.ExportTo(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return n, err
}

// ExportTo writes one "username hash" line per user, sorted by username,
// and returns the number of users written.
func (s *UserService) ExportTo(w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	users := s.store.List()
	for _, u := range users {
		if _, err := fmt.Fprintf(bw, "%s %s\n", u.Username, u.PasswordHash); err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(users), nil
}
