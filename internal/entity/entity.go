package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Profile is a named, isolated session context stored under Dir.
type Profile struct {
	Name string
	Dir  string
}

// SessionState is the browser's portable session representation (cookies and
// origin storage). The content is opaque to everything but the driver.
type SessionState struct {
	Raw     json.RawMessage
	SavedAt time.Time
}

type Credentials struct {
	Identity string
	Secret   string
}

type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// ModelDefinition is one entry of the static model catalog.
type ModelDefinition struct {
	Key            string
	DisplayName    string
	VerifyTokens   []string
	ExcludeTokens  []string
	TargetIDs      []string
	FallbackLabels []string
	Preconditions  []PreconditionStep
}

// PreconditionStep is a best-effort click that makes a model option reachable,
// such as opening a submenu.
type PreconditionStep struct {
	Name     string
	Selector string
}

// QueryState lives for the duration of one submit call.
type QueryState struct {
	ID            uuid.UUID
	Model         string
	Baseline      int
	StartedAt     time.Time
	Deadline      time.Time
	Timeout       time.Duration
	LastLength    int
	StableCount   int
	MessageID     string
	RenderedText  string
	ExtractedText string
}

type AuthState string

const (
	AuthStateStart                AuthState = "start"
	AuthStateNavigated            AuthState = "navigated"
	AuthStateAlreadyAuthenticated AuthState = "already_authenticated"
	AuthStateCredentialsEntered   AuthState = "credentials_entered"
	AuthStateVerificationPending  AuthState = "verification_pending"
	AuthStateVerificationSkipped  AuthState = "verification_skipped"
	AuthStateConfirmed            AuthState = "authenticated_confirmed"
	AuthStateFailed               AuthState = "failed"
)

// Terminal reports whether no further transition follows s.
func (s AuthState) Terminal() bool {
	switch s {
	case AuthStateConfirmed, AuthStateFailed:
		return true
	}

	return false
}

type QueryPhase string

const (
	QueryPhaseSelectModel QueryPhase = "select_model"
	QueryPhaseSubmit      QueryPhase = "submit"
	QueryPhaseArrival     QueryPhase = "arrival"
	QueryPhaseStabilize   QueryPhase = "stabilize"
	QueryPhaseExtract     QueryPhase = "extract"
	QueryPhaseDone        QueryPhase = "done"
)

// LoginResult summarises a completed login run.
type LoginResult struct {
	RunID             uuid.UUID
	Profile           string
	Path              []AuthState
	AlreadyLoggedIn   bool
	VerificationAsked bool
	FinishedAt        time.Time
}
