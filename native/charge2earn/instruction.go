package charge2earn

import (
	"fmt"

	"charge2earn/core/codec"
	cerrors "charge2earn/core/errors"
)

// Tag selects the instruction variant. It is the first byte of the payload.
type Tag uint8

const (
	TagAddCharger Tag = iota
	TagStartSession
	TagStopSession
	TagCreateListing
	TagBuyFromListing
	TagCancelListing
)

var tagNames = map[Tag]string{
	TagAddCharger:     "AddCharger",
	TagStartSession:   "StartSession",
	TagStopSession:    "StopSession",
	TagCreateListing:  "CreateListing",
	TagBuyFromListing: "BuyFromListing",
	TagCancelListing:  "CancelListing",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Instruction is one decoded program instruction.
type Instruction interface {
	Tag() Tag
	encode(w *codec.Writer)
}

type AddCharger struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	City       string  `json:"city"`
	Address    string  `json:"address"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	PowerKW    float32 `json:"powerKw"`
	RewardRate uint64  `json:"rewardRate"`
	PriceRate  uint64  `json:"priceRate"`
}

type StartSession struct {
	StartTs int64 `json:"startTs"`
}

type StopSession struct {
	EndTs int64 `json:"endTs"`
}

type CreateListing struct {
	Amount        uint64 `json:"amount"`
	PricePerPoint uint64 `json:"pricePerPoint"`
}

type BuyFromListing struct {
	Amount uint64 `json:"amount"`
}

type CancelListing struct{}

func (AddCharger) Tag() Tag     { return TagAddCharger }
func (StartSession) Tag() Tag   { return TagStartSession }
func (StopSession) Tag() Tag    { return TagStopSession }
func (CreateListing) Tag() Tag  { return TagCreateListing }
func (BuyFromListing) Tag() Tag { return TagBuyFromListing }
func (CancelListing) Tag() Tag  { return TagCancelListing }

func (ix AddCharger) encode(w *codec.Writer) {
	w.String(ix.Code)
	w.String(ix.Name)
	w.String(ix.City)
	w.String(ix.Address)
	w.F64(ix.Latitude)
	w.F64(ix.Longitude)
	w.F32(ix.PowerKW)
	w.U64(ix.RewardRate)
	w.U64(ix.PriceRate)
}

func (ix StartSession) encode(w *codec.Writer) { w.I64(ix.StartTs) }

func (ix StopSession) encode(w *codec.Writer) { w.I64(ix.EndTs) }

func (ix CreateListing) encode(w *codec.Writer) {
	w.U64(ix.Amount)
	w.U64(ix.PricePerPoint)
}

func (ix BuyFromListing) encode(w *codec.Writer) { w.U64(ix.Amount) }

func (CancelListing) encode(*codec.Writer) {}

// EncodeInstruction renders ix as tag byte followed by its fields.
func EncodeInstruction(ix Instruction) []byte {
	w := codec.NewWriter(64)
	w.U8(uint8(ix.Tag()))
	ix.encode(w)
	return w.Bytes()
}

// DecodeInstruction parses a payload. Unknown tags, truncated fields and
// trailing bytes are rejected as invalid arguments.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", cerrors.ErrInvalidArgument)
	}
	r := codec.NewReader(data)
	tag := Tag(r.U8())
	var ix Instruction
	switch tag {
	case TagAddCharger:
		ix = AddCharger{
			Code:       r.String(),
			Name:       r.String(),
			City:       r.String(),
			Address:    r.String(),
			Latitude:   r.F64(),
			Longitude:  r.F64(),
			PowerKW:    r.F32(),
			RewardRate: r.U64(),
			PriceRate:  r.U64(),
		}
	case TagStartSession:
		ix = StartSession{StartTs: r.I64()}
	case TagStopSession:
		ix = StopSession{EndTs: r.I64()}
	case TagCreateListing:
		ix = CreateListing{Amount: r.U64(), PricePerPoint: r.U64()}
	case TagBuyFromListing:
		ix = BuyFromListing{Amount: r.U64()}
	case TagCancelListing:
		ix = CancelListing{}
	default:
		return nil, fmt.Errorf("%w: unknown instruction tag %d", cerrors.ErrInvalidArgument, uint8(tag))
	}
	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", cerrors.ErrInvalidArgument, tag, err)
	}
	return ix, nil
}
