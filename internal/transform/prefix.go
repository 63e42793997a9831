package transform

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// propertyPrefixes lists the vendor prefixes emitted ahead of a property.
var propertyPrefixes = map[string][]string{
	"appearance":           {"-webkit-", "-moz-"},
	"user-select":          {"-webkit-", "-moz-"},
	"backdrop-filter":      {"-webkit-"},
	"text-size-adjust":     {"-webkit-", "-moz-"},
	"hyphens":              {"-webkit-"},
	"mask":                 {"-webkit-"},
	"mask-image":           {"-webkit-"},
	"clip-path":            {"-webkit-"},
	"box-decoration-break": {"-webkit-"},
	"text-decoration-skip": {"-webkit-"},
	"tab-size":             {"-moz-"},
}

// valuePrefixes lists property values that need a prefixed variant.
var valuePrefixes = map[string]map[string][]string{
	"position": {"sticky": {"-webkit-"}},
}

var (
	webkitKeyframesRe = regexp.MustCompile(`@-webkit-keyframes\s+([^\s{]+)`)
	importantRe       = regexp.MustCompile(`\s*!\s*important$`)
)

// Prefixer inserts vendor-prefixed declarations before the standard ones.
type Prefixer struct{}

// NewPrefixer creates a Prefixer.
func NewPrefixer() *Prefixer { return &Prefixer{} }

// Name implements Step.
func (*Prefixer) Name() string { return StepPrefix }

// Transform implements Step.
func (*Prefixer) Transform(src []byte) ([]byte, error) {
	existing := make(map[string]bool)
	for _, m := range webkitKeyframesRe.FindAllSubmatch(src, -1) {
		existing[string(m[1])] = true
	}

	w := &prefixWriter{keyframes: existing}
	root := &block{}
	w.stack = []*block{root}

	p := css.NewParser(parse.NewInput(bytes.NewReader(src)), false)
	for {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			if err := p.Err(); err != nil && err != io.EOF {
				return nil, fmt.Errorf("parsing css: %w", err)
			}
			break
		}

		switch gt {
		case css.CommentGrammar, css.TokenGrammar:
			w.top().raw(string(data))
		case css.AtRuleGrammar:
			w.top().raw(atRuleHeader(data, p.Values()) + ";")
		case css.BeginAtRuleGrammar:
			name := strings.ToLower(string(data))
			w.push(&block{
				header:   atRuleHeader(data, p.Values()),
				atRule:   name,
				atParams: strings.TrimSpace(joinValues(p.Values())),
			})
		case css.QualifiedRuleGrammar:
			w.selector.WriteString(joinValues(p.Values()))
			w.selector.WriteString(",")
		case css.BeginRulesetGrammar:
			w.selector.WriteString(joinValues(p.Values()))
			w.push(&block{header: w.selector.String()})
			w.selector.Reset()
		case css.DeclarationGrammar:
			w.top().decl(string(data), joinValues(p.Values()))
		case css.CustomPropertyGrammar:
			w.top().raw(string(data) + ":" + joinValues(p.Values()) + ";")
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			w.pop()
		}
	}

	for len(w.stack) > 1 {
		w.pop()
	}
	return []byte(root.body(w)), nil
}

type prefixWriter struct {
	stack     []*block
	selector  strings.Builder
	keyframes map[string]bool
}

func (w *prefixWriter) top() *block { return w.stack[len(w.stack)-1] }

func (w *prefixWriter) push(b *block) { w.stack = append(w.stack, b) }

func (w *prefixWriter) pop() {
	if len(w.stack) < 2 {
		return
	}
	b := w.top()
	w.stack = w.stack[:len(w.stack)-1]
	parent := w.top()

	rendered := b.header + "{" + b.body(w) + "}"
	if b.atRule == "@keyframes" && !w.keyframes[b.atParams] {
		parent.raw("@-webkit-keyframes " + b.atParams + "{" + b.body(w) + "}")
	}
	parent.raw(rendered)
}

// part is either raw text or a declaration.
type part struct {
	text     string
	property string
	value    string
	isDecl   bool
}

type block struct {
	header   string
	atRule   string
	atParams string
	parts    []part
}

func (b *block) raw(text string) {
	b.parts = append(b.parts, part{text: text})
}

func (b *block) decl(property, value string) {
	b.parts = append(b.parts, part{property: property, value: value, isDecl: true})
}

func (b *block) body(w *prefixWriter) string {
	declared := make(map[string]bool)
	for _, p := range b.parts {
		if p.isDecl {
			declared[declKey(p.property, p.value)] = true
		}
	}

	var sb strings.Builder
	for _, p := range b.parts {
		if !p.isDecl {
			sb.WriteString(p.text)
			continue
		}
		for _, extra := range prefixedDecls(p.property, p.value) {
			if !declared[declKey(extra.property, extra.value)] {
				sb.WriteString(extra.property + ":" + extra.value + ";")
			}
		}
		sb.WriteString(p.property + ":" + p.value + ";")
	}
	return sb.String()
}

// declKey identifies a declaration for de-duplication. Prefixed properties
// compare by name; value prefixes compare by name and value.
func declKey(property, value string) string {
	property = strings.ToLower(property)
	if _, ok := valuePrefixes[property]; ok {
		v, _ := splitImportant(value)
		return property + ":" + v
	}
	return property
}

func prefixedDecls(property, value string) []part {
	name := strings.ToLower(property)
	if strings.HasPrefix(name, "-") {
		return nil
	}

	var out []part
	for _, prefix := range propertyPrefixes[name] {
		out = append(out, part{property: prefix + name, value: value, isDecl: true})
	}
	if byValue, ok := valuePrefixes[name]; ok {
		v, important := splitImportant(value)
		for _, prefix := range byValue[v] {
			out = append(out, part{property: name, value: prefix + v + important, isDecl: true})
		}
	}
	return out
}

func normalizeValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// splitImportant returns the normalized value without a trailing
// !important, and "!important" when it was present.
func splitImportant(value string) (string, string) {
	v := normalizeValue(value)
	if loc := importantRe.FindStringIndex(v); loc != nil {
		return strings.TrimSpace(v[:loc[0]]), "!important"
	}
	return v, ""
}

func atRuleHeader(name []byte, values []css.Token) string {
	params := strings.TrimSpace(joinValues(values))
	if params == "" {
		return string(name)
	}
	return string(name) + " " + params
}

func joinValues(values []css.Token) string {
	var sb strings.Builder
	for _, v := range values {
		sb.Write(v.Data)
	}
	return sb.String()
}
