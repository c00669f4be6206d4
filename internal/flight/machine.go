// Package flight owns the vehicle's flight mode and the arming handshake.
//
// The mode lives in two registers: "state" (uint8 code) and
// "stateDescript" (its name). Entering ARMED requires a single-use token
// issued by IssueToken once the flight configuration verifies.
package flight

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"sync"

	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/ptam"
)

// Mode is the flight mode code stored in the state register
type Mode uint8

const (
	ModeUnknown Mode = 0
	ModePrep    Mode = 1
	ModeArmed   Mode = 2
	ModeBypass  Mode = 3
)

// String returns the mode name as stored in stateDescript
func (m Mode) String() string {
	switch m {
	case ModePrep:
		return "PREP"
	case ModeArmed:
		return "ARMED"
	case ModeBypass:
		return "BYPASS"
	default:
		return "UNAVAILABLE"
	}
}

// ParseMode converts a numeric code into a Mode
func ParseMode(code int) (Mode, error) {
	if code >= int(ModePrep) && code <= int(ModeBypass) {
		return Mode(code), nil
	}
	return ModeUnknown, apperr.Newf("unknown flight mode %d", code).WithCode(apperr.CodeInvalidInput)
}

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Errors returned by the machine
var (
	ErrNotVerified  = apperr.New("flight configuration not verified").WithCode(apperr.CodeInvalidState)
	ErrInvalidToken = apperr.New("arm token rejected").WithCode(apperr.CodeInvalidToken)
	ErrNotArmed     = apperr.New("arming requires an authorized token").WithCode(apperr.CodeInvalidState)
)

// TransitionFunc is called after every successful mode change
type TransitionFunc func(from, to Mode)

// Options configures a Machine
type Options struct {
	TokenLength      int
	RequireSetpoints bool
}

// Machine reads and writes the flight mode registers
type Machine struct {
	store            *ptam.Store
	tokenLen         int
	requireSetpoints bool

	// serializes read-modify-write sequences on the state registers
	mu        sync.Mutex
	listeners []TransitionFunc
}

// NewMachine creates a machine over store
func NewMachine(store *ptam.Store, opts Options) *Machine {
	if opts.TokenLength <= 0 {
		opts.TokenLength = 6
	}
	return &Machine{
		store:            store,
		tokenLen:         opts.TokenLength,
		requireSetpoints: opts.RequireSetpoints,
	}
}

// OnTransition registers a listener for mode changes
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Initialize writes PREP when no mode has been stored yet
func (m *Machine) Initialize() error {
	m.mu.Lock()
	if _, err := m.store.RetrieveUint8(ptam.KeyState); err == nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.Transition(ModePrep)
}

// Current returns the stored mode and its description
func (m *Machine) Current() (Mode, string, error) {
	code, err := m.store.RetrieveUint8(ptam.KeyState)
	if err != nil {
		return ModeUnknown, ModeUnknown.String(), err
	}
	descript, err := m.store.RetrieveString(ptam.KeyStateDescript)
	if err != nil {
		descript = Mode(code).String()
	}
	return Mode(code), descript, nil
}

// Mode returns the stored mode, or ModeUnknown
func (m *Machine) Mode() Mode {
	mode, _, _ := m.Current()
	return mode
}

// Transition stores mode and notifies listeners
func (m *Machine) Transition(mode Mode) error {
	if _, err := ParseMode(int(mode)); err != nil {
		return err
	}

	m.mu.Lock()
	from := m.Mode()
	if err := m.write(mode); err != nil {
		m.mu.Unlock()
		return err
	}
	listeners := make([]TransitionFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(from, mode)
	}
	return nil
}

// write stores the description before the code so that a full partition
// never leaves a code without its description
func (m *Machine) write(mode Mode) error {
	prev, prevErr := m.store.RetrieveString(ptam.KeyStateDescript)
	if err := m.store.StoreString(ptam.KeyStateDescript, mode.String()); err != nil {
		return err
	}
	if err := m.store.StoreUint8(ptam.KeyState, uint8(mode)); err != nil {
		if prevErr != nil {
			m.store.ClearString(ptam.KeyStateDescript)
		} else {
			m.store.StoreString(ptam.KeyStateDescript, prev)
		}
		return err
	}
	return nil
}

// VerifyConfiguration reports whether the vehicle may be armed: it must not
// be armed already, and the navigation setpoints must be present when
// RequireSetpoints is set.
func (m *Machine) VerifyConfiguration() error {
	if m.Mode() == ModeArmed {
		return apperr.Wrap(ErrNotVerified, "already armed")
	}
	if !m.requireSetpoints {
		return nil
	}
	for _, key := range []string{ptam.KeyTargetLat, ptam.KeyTargetLong, ptam.KeyTargetAlt} {
		if _, err := m.store.RetrieveDouble(key); err != nil {
			return apperr.Wrapf(ErrNotVerified, "setpoint %s missing", key)
		}
	}
	return nil
}

// IssueToken verifies the configuration, then stores and returns a fresh
// arm token, replacing any earlier one.
func (m *Machine) IssueToken() (string, error) {
	if err := m.VerifyConfiguration(); err != nil {
		return "", err
	}

	token, err := randomToken(m.tokenLen)
	if err != nil {
		return "", apperr.Wrap(err, "generate arm token").WithCode(apperr.CodeInternal)
	}

	if err := m.store.StoreString(ptam.KeyArmToken, token); err != nil {
		return "", err
	}
	return token, nil
}

// HasToken reports whether an unused arm token is outstanding
func (m *Machine) HasToken() bool {
	_, err := m.store.RetrieveString(ptam.KeyArmToken)
	return err == nil
}

// Authorize arms the vehicle when token matches the issued arm token. The
// token is consumed on success.
func (m *Machine) Authorize(token string) error {
	m.mu.Lock()
	issued, err := m.store.RetrieveString(ptam.KeyArmToken)
	if err != nil || issued == "" || subtle.ConstantTimeCompare([]byte(issued), []byte(token)) != 1 {
		m.mu.Unlock()
		return ErrInvalidToken
	}
	m.store.ClearString(ptam.KeyArmToken)
	m.mu.Unlock()

	return m.Transition(ModeArmed)
}

// Request is a mode change asked for by the operator. ARMED is only
// reachable through Authorize, so requesting it succeeds only when the
// vehicle is already armed.
func (m *Machine) Request(mode Mode) error {
	if mode == ModeArmed && m.Mode() != ModeArmed {
		return ErrNotArmed
	}
	return m.Transition(mode)
}

// IsNotVerified reports whether err came from a failed verification
func IsNotVerified(err error) bool {
	return errors.Is(err, ErrNotVerified)
}

func randomToken(n int) (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = tokenAlphabet[idx.Int64()]
	}
	return string(b), nil
}
