package charge2earn

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/host"
	nativecommon "charge2earn/native/common"
)

// Program is the charge2earn native program: charger registry, session
// ledger and point marketplace. Handlers mutate only the account views they
// are given; the runtime decides whether those mutations are kept.
type Program struct {
	params Params

	mu     sync.RWMutex
	pauses nativecommon.PauseView
}

// New returns a program using params.
func New(params Params) *Program {
	if params.RegistrationFee == 0 {
		params.RegistrationFee = RegistrationFee
	}
	return &Program{params: params}
}

// SetPauses installs the pause view consulted before every instruction.
func (p *Program) SetPauses(view nativecommon.PauseView) {
	p.mu.Lock()
	p.pauses = view
	p.mu.Unlock()
}

func (p *Program) Params() Params { return p.params }

func (p *Program) ID() common.Address { return ProgramID }

// InstructionName labels data for metrics. Undecodable payloads are "invalid".
func (p *Program) InstructionName(data []byte) string {
	if len(data) == 0 {
		return "invalid"
	}
	tag := Tag(data[0])
	if _, ok := tagNames[tag]; !ok {
		return "invalid"
	}
	return tag.String()
}

// Process decodes data and routes it to exactly one handler.
func (p *Program) Process(ctx *host.Context, accounts []*host.AccountInfo, data []byte) error {
	p.mu.RLock()
	pauses := p.pauses
	p.mu.RUnlock()
	if err := nativecommon.Guard(pauses, ModuleName); err != nil {
		return err
	}
	ix, err := DecodeInstruction(data)
	if err != nil {
		return err
	}
	switch ix := ix.(type) {
	case AddCharger:
		return p.addCharger(ctx, accounts, ix)
	case StartSession:
		return p.startSession(ctx, accounts, ix)
	case StopSession:
		return p.stopSession(ctx, accounts, ix)
	case CreateListing:
		return p.createListing(ctx, accounts, ix)
	case BuyFromListing:
		return p.buyFromListing(ctx, accounts, ix)
	case CancelListing:
		return p.cancelListing(ctx, accounts)
	default:
		return fmt.Errorf("%w: unhandled instruction %T", cerrors.ErrInvalidArgument, ix)
	}
}
