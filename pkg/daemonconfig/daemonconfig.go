// Package daemonconfig loads the s-expression configuration file shared
// by pkg/jtagd and pkg/nocswitch's daemons, per SPEC_FULL.md §3's
// "daemon configuration file" data model.
//
// Grounded on the teacher's cmd/investigate_sexp, the one place in the
// pack that exercises github.com/chewxy/sexp: this package uses
// sexp.ParseString the same way, to validate the document is
// well-formed before extraction, since the teacher's own usage never
// goes past IsLeaf/LeafCount on the parsed result. Field extraction
// below walks the text with this package's own minimal recursive-descent
// reader (the same byte-scanning style pkg/jed and pkg/bitfile use for
// their own framing), rather than depending on chewxy/sexp's internal
// tree shape beyond what the teacher's file demonstrates.
package daemonconfig

import (
	"strconv"
	"strings"

	"github.com/chewxy/sexp"

	"github.com/openjtaghal/jtaghal/jtagerr"
)

// Config is the daemon configuration this module recognizes: adapter
// selection, the device repository directory, and the listen address.
// Unrecognized top-level forms are collected into Warnings rather than
// rejected, per §3's forward-compatibility rule.
type Config struct {
	AdapterKind   string
	AdapterSerial string
	RepositoryDir string
	ListenHost    string
	ListenPort    int
	Warnings      []string
}

// Defaults matches the documented fallback when a form is absent: the
// in-memory simulator adapter and the historical 0.0.0.0:2542 listen
// address from the example config in §3.
func Defaults() Config {
	return Config{
		AdapterKind: "sim",
		ListenHost:  "0.0.0.0",
		ListenPort:  2542,
	}
}

// Load parses a daemon configuration document, returning Defaults()
// overridden by whatever forms are present.
func Load(data []byte) (Config, error) {
	// sexp.ParseString validates the document is a syntactically valid
	// sequence of s-expressions before this package's own reader walks
	// it for the specific forms it understands.
	if _, err := sexp.ParseString(string(data)); err != nil {
		return Config{}, jtagerr.Wrap(jtagerr.Framing, err, "daemonconfig: malformed s-expression document")
	}

	forms, err := parseForms(string(data))
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults()
	for _, f := range forms {
		switch f.head {
		case "adapter":
			for _, c := range f.children {
				switch c.head {
				case "kind":
					cfg.AdapterKind = c.atom
				case "serial":
					cfg.AdapterSerial = c.atom
				}
			}
		case "repository":
			for _, c := range f.children {
				if c.head == "dir" {
					cfg.RepositoryDir = c.atom
				}
			}
		case "listen":
			for _, c := range f.children {
				switch c.head {
				case "host":
					cfg.ListenHost = c.atom
				case "port":
					port, err := strconv.Atoi(c.atom)
					if err != nil {
						return Config{}, jtagerr.New(jtagerr.Framing, "daemonconfig: listen port %q is not a number", c.atom)
					}
					cfg.ListenPort = port
				}
			}
		default:
			cfg.Warnings = append(cfg.Warnings, "unrecognized top-level form: "+f.head)
		}
	}
	return cfg, nil
}

// form is one parenthesized s-expression of the limited two-level shape
// this config format uses: `(head (child-head child-atom) ...)`.
type form struct {
	head     string
	atom     string
	children []form
}

// parseForms reads every top-level `(...)` form in text.
func parseForms(text string) ([]form, error) {
	var forms []form
	pos := 0
	for {
		pos = skipSpace(text, pos)
		if pos >= len(text) {
			break
		}
		if text[pos] != '(' {
			return nil, jtagerr.New(jtagerr.Framing, "daemonconfig: expected '(' at byte %d", pos)
		}
		f, next, err := parseForm(text, pos)
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
		pos = next
	}
	return forms, nil
}

func parseForm(text string, pos int) (form, int, error) {
	if text[pos] != '(' {
		return form{}, pos, jtagerr.New(jtagerr.Framing, "daemonconfig: expected '(' at byte %d", pos)
	}
	pos++
	pos = skipSpace(text, pos)

	head, pos, err := readAtom(text, pos)
	if err != nil {
		return form{}, pos, err
	}
	f := form{head: head}

	for {
		pos = skipSpace(text, pos)
		if pos >= len(text) {
			return form{}, pos, jtagerr.New(jtagerr.Framing, "daemonconfig: unterminated form %q", head)
		}
		if text[pos] == ')' {
			return f, pos + 1, nil
		}
		if text[pos] == '(' {
			child, next, err := parseForm(text, pos)
			if err != nil {
				return form{}, pos, err
			}
			f.children = append(f.children, child)
			pos = next
			continue
		}
		atom, next, err := readAtom(text, pos)
		if err != nil {
			return form{}, pos, err
		}
		f.atom = atom
		pos = next
	}
}

func readAtom(text string, pos int) (string, int, error) {
	if pos < len(text) && text[pos] == '"' {
		end := strings.IndexByte(text[pos+1:], '"')
		if end < 0 {
			return "", pos, jtagerr.New(jtagerr.Framing, "daemonconfig: unterminated string literal at byte %d", pos)
		}
		return text[pos+1 : pos+1+end], pos + 1 + end + 1, nil
	}
	start := pos
	for pos < len(text) && !isSpace(text[pos]) && text[pos] != '(' && text[pos] != ')' {
		pos++
	}
	if pos == start {
		return "", pos, jtagerr.New(jtagerr.Framing, "daemonconfig: expected an atom at byte %d", pos)
	}
	return text[start:pos], pos, nil
}

func skipSpace(text string, pos int) int {
	for pos < len(text) && isSpace(text[pos]) {
		pos++
	}
	return pos
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
