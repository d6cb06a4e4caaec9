package jed

import "github.com/alecthomas/participle/v2"

// fuseLoad is the body of an "L<addr> <bits>*" fuse-data row.
type fuseLoad struct {
	Address string `@Num`
	Bits    string `@Num`
}

// fuseField is one opcode-tagged field from a JED file body. Exactly one
// pointer is non-nil after a successful parse; parse.go switches on which.
type fuseField struct {
	FuseCount   *string   `  "QF" @Num`
	PinCount    *string   `| "QP" @Num`
	VectorCount *string   `| "QV" @Num`
	DefaultFuse *string   `| "F" @Num`
	TestCond    *string   `| "X" @Num`
	Checksum    *string   `| "C" @Num`
	Load        *fuseLoad `| "L" @@`
}

var fieldParser = participle.MustBuild[fuseField](
	participle.Lexer(fieldLexer),
	participle.Elide("Whitespace"),
)
