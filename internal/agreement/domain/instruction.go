package agreement

// Instruction names a state machine entry point.
type Instruction string

const (
	InstructionInitialize      Instruction = "initialize_rent_contract"
	InstructionDepositSecurity Instruction = "deposit_security"
	InstructionPayRent         Instruction = "pay_rent"
	InstructionWithholdDeposit Instruction = "withhold_deposit"
	InstructionTerminate       Instruction = "terminate"
	InstructionSettleDeposit   Instruction = "settle_deposit"
)

// Instructions lists every instruction in a stable order.
var Instructions = []Instruction{
	InstructionInitialize,
	InstructionDepositSecurity,
	InstructionPayRent,
	InstructionWithholdDeposit,
	InstructionTerminate,
	InstructionSettleDeposit,
}

// allowed is the transition table consulted on every handler entry.
var allowed = map[Instruction]map[Status]struct{}{
	InstructionInitialize:      {StatusUninitialized: {}},
	InstructionDepositSecurity: {StatusCreated: {}},
	InstructionPayRent:         {StatusSecurityDeposited: {}, StatusActive: {}},
	InstructionWithholdDeposit: {StatusSecurityDeposited: {}, StatusActive: {}},
	InstructionTerminate:       {StatusCreated: {}, StatusSecurityDeposited: {}, StatusActive: {}},
	InstructionSettleDeposit:   {StatusSecurityDeposited: {}, StatusActive: {}},
}

// AllowedFrom reports whether the instruction may run against a record in status s.
func (i Instruction) AllowedFrom(s Status) bool {
	_, ok := allowed[i][s]
	return ok
}

// Guard returns ErrWrongStatus when the instruction is not allowed from s.
func Guard(i Instruction, s Status) error {
	if !i.AllowedFrom(s) {
		return ErrWrongStatus
	}
	return nil
}
