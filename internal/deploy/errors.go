package deploy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/rollupctl/internal/manifest"
)

// Kind classifies a run failure.
type Kind string

const (
	InstantiationFailure  Kind = "instantiation_failure"
	RegistrationFailure   Kind = "registration_failure"
	InitializationFailure Kind = "initialization_failure"
	ManifestIOFailure     Kind = "manifest_io_failure"
	DependencyUnresolved  Kind = "dependency_unresolved"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrInstantiation        = errors.New("deploy: instantiation failed")
	ErrRegistration         = errors.New("deploy: registration failed")
	ErrInitialization       = errors.New("deploy: initialization failed")
	ErrManifestIO           = errors.New("deploy: manifest io failed")
	ErrDependencyUnresolved = errors.New("deploy: dependency unresolved")

	// ErrNotUpgradeable is returned when upgrading a component that is not
	// deployed behind a proxy.
	ErrNotUpgradeable = errors.New("deploy: component is not upgradeable")
)

func (k Kind) sentinel() error {
	switch k {
	case InstantiationFailure:
		return ErrInstantiation
	case RegistrationFailure:
		return ErrRegistration
	case InitializationFailure:
		return ErrInitialization
	case ManifestIOFailure:
		return ErrManifestIO
	case DependencyUnresolved:
		return ErrDependencyUnresolved
	default:
		return nil
	}
}

// Phase is a stage of a run.
type Phase string

const (
	PhaseResolve    Phase = "resolve"
	PhaseRegister   Phase = "register"
	PhaseInitialize Phase = "initialize"
	PhasePersist    Phase = "persist"
	PhaseUpgrade    Phase = "upgrade"
)

// Error describes why a run stopped. Nothing is rolled back: Partial holds
// every address bound before the failure and can be passed as the prior
// manifest of the next run. It is marked partial, so its entries are not
// assumed to be initialized.
type Error struct {
	Kind  Kind
	Phase Phase
	// Name is the component being processed, if any.
	Name string
	// TxHash is the failing transaction, if one was sent.
	TxHash common.Hash
	Err    error

	Partial *manifest.Manifest
	// Progressed reports whether the run confirmed any transaction before
	// failing.
	Progressed bool
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s during %s", e.Kind, e.Phase)
	if e.Name != "" {
		fmt.Fprintf(&b, " of %s", e.Name)
	}
	if e.TxHash != (common.Hash{}) {
		fmt.Fprintf(&b, " (tx %s)", e.TxHash.Hex())
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Exit codes returned by ExitCode.
const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitPartial = 2
)

// ExitCode maps a run result to a process exit code: ExitPartial when the
// run failed after changing chain state, ExitFailed for any other error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var de *Error
	if errors.As(err, &de) && de.Progressed {
		return ExitPartial
	}
	return ExitFailed
}
