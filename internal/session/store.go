package session

import (
	"chat-oracle/internal/config"
	"chat-oracle/internal/entity"
	"chat-oracle/pkg/apperr"
	"chat-oracle/pkg/logg"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionStoreName = "SessionStore"
	StateFileName    = "browser-state.json"
)

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Store keeps one browser-state.json per profile directory under root.
type Store struct {
	root   string
	logger *zap.Logger
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewStore(params Params) (*Store, error) {
	root, err := params.Config.ProfilesDir()
	if err != nil {
		return nil, err
	}

	return NewStoreAt(root, params.Logger), nil
}

func NewStoreAt(root string, logger *zap.Logger) *Store {
	return &Store{
		root:   root,
		logger: logger.With(zap.String(logg.Layer, sessionStoreName)),
	}
}

// Profile resolves name to its directory, creating it when missing.
func (s *Store) Profile(name string) (entity.Profile, error) {
	const op = "Profile"

	if err := ValidateProfileName(name); err != nil {
		return entity.Profile{}, apperr.InvalidReqError(op, "profile", err)
	}

	dir := filepath.Join(s.root, name)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return entity.Profile{}, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason:  "mkdir_failed",
			apperr.MetaStage:   apperr.StageSession,
			apperr.MetaProfile: name,
		})
	}

	return entity.Profile{Name: name, Dir: dir}, nil
}

// Load returns the saved state for the profile. A missing, unreadable or
// corrupt file is reported as absent.
func (s *Store) Load(profile entity.Profile) (*entity.SessionState, bool) {
	const op = "Load"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Profile, profile.Name))

	path := statePath(profile)

	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Cannot stat session state", zap.Error(err))
		}

		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Cannot read session state", zap.Error(err))

		return nil, false
	}

	if len(data) == 0 || !json.Valid(data) {
		logger.Warn("Ignoring corrupt session state", zap.String("path", path))

		return nil, false
	}

	return &entity.SessionState{
		Raw:     json.RawMessage(data),
		SavedAt: info.ModTime(),
	}, true
}

// Save replaces the profile's state file atomically.
func (s *Store) Save(profile entity.Profile, state *entity.SessionState) error {
	const op = "Save"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Profile, profile.Name))

	if state == nil || len(state.Raw) == 0 {
		return apperr.InvalidReqError(op, "state", errors.New("session state is empty"))
	}

	if !json.Valid(state.Raw) {
		return apperr.InvalidReqError(op, "state", errors.New("session state is not valid JSON"))
	}

	if err := os.MkdirAll(profile.Dir, 0o700); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason:  "mkdir_failed",
			apperr.MetaStage:   apperr.StageSession,
			apperr.MetaProfile: profile.Name,
		})
	}

	tmp, err := os.CreateTemp(profile.Dir, StateFileName+".*.tmp")
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "create_temp_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(state.Raw); err != nil {
		_ = tmp.Close()

		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "write_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return apperr.WrapWithReason(op, apperr.CodeInternal, err, "sync_failed")
	}

	if err := tmp.Close(); err != nil {
		return apperr.WrapWithReason(op, apperr.CodeInternal, err, "close_failed")
	}

	if err := os.Rename(tmpName, statePath(profile)); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "rename_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	logger.Debug("Session state saved", zap.String("path", statePath(profile)), zap.Int("bytes", len(state.Raw)))

	return nil
}

// Path is the state file location for the profile.
func (s *Store) Path(profile entity.Profile) string {
	return statePath(profile)
}

func statePath(profile entity.Profile) string {
	return filepath.Join(profile.Dir, StateFileName)
}

func ValidateProfileName(name string) error {
	if name == "" {
		return errors.New("profile name is empty")
	}

	if name == "." || name == ".." || !profileNamePattern.MatchString(name) {
		return fmt.Errorf("profile name %q must contain only letters, digits, '.', '_' or '-'", name)
	}

	return nil
}
