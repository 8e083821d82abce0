package found

// Atomic mutation opcodes accepted by Transaction.AtomicOp (spec §6.2).
// Parameters are byte strings of opcode-appropriate length; the integer
// ops use little-endian two's complement.
const (
	MutationAdd                    = 2
	MutationBitAnd                 = 6
	MutationBitOr                  = 7
	MutationBitXor                 = 8
	MutationMax                    = 12
	MutationMin                    = 13
	MutationSetVersionstampedKey   = 14
	MutationSetVersionstampedValue = 15
	MutationByteMin                = 16
	MutationByteMax                = 17
)
