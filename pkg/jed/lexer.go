package jed

import "github.com/alecthomas/participle/v2/lexer"

// fieldLexer tokenizes a single JEDEC-3C body field (the opcode character
// plus its numeric payload) after the surrounding STX/ETX framing, file
// checksum, and comment/identifier fields (N/J, free text the original
// parser never tokenized either) have already been sliced off by plain
// string scanning in parse.go — the same split this spec's sibling .bit
// codec (pkg/bitfile) and the teacher's pkg/idcode use between
// byte-level framing and grammar-level content.
//
// A single "Num" token covers every numeric payload (fuse counts, pin
// counts, addresses, fuse-bit runs, and hex checksums alike); which
// interpretation applies is decided in Go by which grammar alternative
// captured it, not by the lexer.
var fieldLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "QF", Pattern: `QF`},
	{Name: "QP", Pattern: `QP`},
	{Name: "QV", Pattern: `QV`},
	{Name: "L", Pattern: `L`},
	{Name: "C", Pattern: `C`},
	{Name: "F", Pattern: `F`},
	{Name: "X", Pattern: `X`},
	{Name: "Num", Pattern: `[0-9A-Fa-f]+`},
})
