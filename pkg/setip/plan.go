package setip

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"

	"github.com/daimatz/setip/pkg/hierarchy"
)

// planEncMode encodes plans canonically so equal plans have equal bytes.
var planEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("setip: failed to create CBOR enc mode: %v", err))
	}
	planEncMode = em
}

// Plan is a saved discovery result, tied to the exact class bytes it was
// computed from.
type Plan struct {
	Owner       string     `cbor:"owner"`
	Method      MethodName `cbor:"method"`
	Fingerprint uint64     `cbor:"fingerprint"`
	Targets     Targets    `cbor:"targets"`
}

// Fingerprint identifies class bytes.
func Fingerprint(class []byte) uint64 {
	return xxh3.Hash(class)
}

// NewPlan records targets discovered for method in class.
func NewPlan(owner string, method MethodName, class []byte, targets *Targets) *Plan {
	return &Plan{
		Owner:       hierarchy.InternalName(owner),
		Method:      method,
		Fingerprint: Fingerprint(class),
		Targets:     *targets,
	}
}

// Marshal serializes the plan to CBOR bytes.
func (p *Plan) Marshal() ([]byte, error) {
	return planEncMode.Marshal(p)
}

// UnmarshalPlan deserializes a plan from CBOR bytes.
func UnmarshalPlan(data []byte) (*Plan, error) {
	var p Plan
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("setip: unmarshal plan: %w", err)
	}
	return &p, nil
}

// Check returns ErrStaleTarget when class is not the class the plan was
// made from.
func (p *Plan) Check(class []byte) error {
	if got := Fingerprint(class); got != p.Fingerprint {
		return fmt.Errorf("%w: class fingerprint %016x, plan has %016x", ErrStaleTarget, got, p.Fingerprint)
	}
	return nil
}

// Target returns the planned target for line after checking class against
// the plan.
func (p *Plan) Target(class []byte, line int) (LineTarget, error) {
	if err := p.Check(class); err != nil {
		return LineTarget{}, err
	}
	lt, ok := p.Targets.Find(line)
	if !ok {
		return LineTarget{}, fmt.Errorf("%w: line %d is not in the plan", ErrNoViableTarget, line)
	}
	return lt, nil
}
