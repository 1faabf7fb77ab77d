// Package interval provides the half-open frame-id range type used to
// address manipulation primitives, together with the textual pair-key
// codec used throughout the persisted annotation files.
//
// Annotation files key primitives by Python-tuple-style strings such as
//
//	"((133, 538), None)"
//
// where each element is either an "(start, end)" interval or the literal
// None when that hand is inactive. Parsing is whitespace-tolerant;
// serialization always produces the canonical spelling with a single
// space after each comma, so Parse(x.Key()) == x for every valid value.
package interval

import (
	"fmt"
	"strconv"
	"strings"
)

// Interval is a half-open frame-id range [Start, End).
// Start < End always holds for values produced by Parse or New.
type Interval struct {
	Start int
	End   int
}

// New validates and constructs an interval.
func New(start, end int) (Interval, error) {
	if start >= end {
		return Interval{}, &MalformedKeyError{
			Key:    fmt.Sprintf("(%d, %d)", start, end),
			Reason: "start must be less than end",
		}
	}
	return Interval{Start: start, End: end}, nil
}

// Parse decodes a single interval key such as "(10, 40)".
func Parse(key string) (Interval, error) {
	p := newParser(key)
	iv, err := p.interval()
	if err != nil {
		return Interval{}, err
	}
	if err := p.end(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Key returns the canonical textual encoding, e.g. "(10, 40)".
func (iv Interval) Key() string {
	return fmt.Sprintf("(%d, %d)", iv.Start, iv.End)
}

// Len returns the number of frames covered.
func (iv Interval) Len() int { return iv.End - iv.Start }

// ContainsFrame reports whether frameID lies in [Start, End).
func (iv Interval) ContainsFrame(frameID int) bool {
	return frameID >= iv.Start && frameID < iv.End
}

// FrameIDs returns the frame ids covered, in ascending order.
func (iv Interval) FrameIDs() []int {
	out := make([]int, 0, iv.Len())
	for f := iv.Start; f < iv.End; f++ {
		out = append(out, f)
	}
	return out
}

// Union returns the smallest interval covering both receivers.
func (iv Interval) Union(other Interval) Interval {
	out := iv
	if other.Start < out.Start {
		out.Start = other.Start
	}
	if other.End > out.End {
		out.End = other.End
	}
	return out
}

// Span is an optional interval: either a present hand interval or the
// absent sentinel (serialized as "None"). The zero Span is absent.
type Span struct {
	Interval Interval
	Valid    bool
}

// Some wraps an interval in a present Span.
func Some(iv Interval) Span { return Span{Interval: iv, Valid: true} }

// None returns the absent Span.
func None() Span { return Span{} }

// Key returns the canonical encoding: the interval key, or "None".
func (s Span) Key() string {
	if !s.Valid {
		return "None"
	}
	return s.Interval.Key()
}

// ParseSpan decodes either an interval key or the "None" sentinel.
func ParseSpan(key string) (Span, error) {
	p := newParser(key)
	s, err := p.span()
	if err != nil {
		return Span{}, err
	}
	if err := p.end(); err != nil {
		return Span{}, err
	}
	return s, nil
}

// Pair addresses one primitive: the left-hand and right-hand spans.
// At least one span must be present for the pair to describe a
// well-formed primitive; Pair itself does not enforce that (the
// primitive table does, where the violation can be reported with
// context).
type Pair struct {
	LH Span
	RH Span
}

// ParsePair decodes a pair key such as "((10, 40), None)".
func ParsePair(key string) (Pair, error) {
	p := newParser(key)
	if err := p.expect('('); err != nil {
		return Pair{}, err
	}
	lh, err := p.span()
	if err != nil {
		return Pair{}, err
	}
	if err := p.expect(','); err != nil {
		return Pair{}, err
	}
	rh, err := p.span()
	if err != nil {
		return Pair{}, err
	}
	if err := p.expect(')'); err != nil {
		return Pair{}, err
	}
	if err := p.end(); err != nil {
		return Pair{}, err
	}
	return Pair{LH: lh, RH: rh}, nil
}

// Key returns the canonical pair encoding, e.g. "((10, 40), None)".
func (p Pair) Key() string {
	return fmt.Sprintf("(%s, %s)", p.LH.Key(), p.RH.Key())
}

// Enclose returns the hull of the present spans. ok is false when both
// spans are absent.
func (p Pair) Enclose() (Interval, bool) {
	switch {
	case p.LH.Valid && p.RH.Valid:
		return p.LH.Interval.Union(p.RH.Interval), true
	case p.LH.Valid:
		return p.LH.Interval, true
	case p.RH.Valid:
		return p.RH.Interval, true
	default:
		return Interval{}, false
	}
}

// FrameIDs returns the ascending frame ids referenced by either span.
func (p Pair) FrameIDs() []int {
	hull, ok := p.Enclose()
	if !ok {
		return nil
	}
	out := make([]int, 0, hull.Len())
	for f := hull.Start; f < hull.End; f++ {
		if (p.LH.Valid && p.LH.Interval.ContainsFrame(f)) ||
			(p.RH.Valid && p.RH.Interval.ContainsFrame(f)) {
			out = append(out, f)
		}
	}
	return out
}

// Canonicalize re-encodes an arbitrary (possibly differently spaced)
// pair key into its canonical spelling.
func Canonicalize(key string) (string, error) {
	p, err := ParsePair(key)
	if err != nil {
		return "", err
	}
	return p.Key(), nil
}

// parser is a tiny recursive-descent scanner over a key string.
// Whitespace between tokens is ignored.
type parser struct {
	src string
	pos int
}

func newParser(src string) *parser { return &parser{src: src} }

func (p *parser) fail(reason string) error {
	return &MalformedKeyError{Key: p.src, Reason: reason}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) expect(c byte) error {
	got, ok := p.peek()
	if !ok {
		return p.fail(fmt.Sprintf("unexpected end of key, want %q", string(c)))
	}
	if got != c {
		return p.fail(fmt.Sprintf("unexpected %q at offset %d, want %q", string(got), p.pos, string(c)))
	}
	p.pos++
	return nil
}

func (p *parser) end() error {
	if c, ok := p.peek(); ok {
		return p.fail(fmt.Sprintf("trailing %q at offset %d", string(c), p.pos))
	}
	return nil
}

func (p *parser) int() (int, error) {
	p.skipSpace()
	start := p.pos
	if p.pos < len(p.src) && p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start || (p.pos == start+1 && p.src[start] == '-') {
		return 0, p.fail(fmt.Sprintf("expected integer at offset %d", start))
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, p.fail(err.Error())
	}
	return n, nil
}

func (p *parser) interval() (Interval, error) {
	if err := p.expect('('); err != nil {
		return Interval{}, err
	}
	start, err := p.int()
	if err != nil {
		return Interval{}, err
	}
	if err := p.expect(','); err != nil {
		return Interval{}, err
	}
	end, err := p.int()
	if err != nil {
		return Interval{}, err
	}
	if err := p.expect(')'); err != nil {
		return Interval{}, err
	}
	if start >= end {
		return Interval{}, p.fail(fmt.Sprintf("start %d must be less than end %d", start, end))
	}
	return Interval{Start: start, End: end}, nil
}

func (p *parser) span() (Span, error) {
	c, ok := p.peek()
	if !ok {
		return Span{}, p.fail("unexpected end of key, want interval or None")
	}
	if c == 'N' {
		if strings.HasPrefix(p.src[p.pos:], "None") {
			p.pos += len("None")
			return None(), nil
		}
		return Span{}, p.fail(fmt.Sprintf("unexpected token at offset %d, want None", p.pos))
	}
	iv, err := p.interval()
	if err != nil {
		return Span{}, err
	}
	return Some(iv), nil
}
