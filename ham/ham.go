// Package ham parses Hamiltonian term strings into a tree of tagged-variant
// terms, the Go-native replacement for the QuaC::HamiltonianTerm hierarchy.
// Rather than a virtual-method inheritance chain, each term is one of three
// variants (Independent, Dependent, Sum) behind the Term interface; each
// variant implements its own Apply method, and there is no central type
// switch.
package ham

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/anthony-santana/QuaC/expr"
)

// Operator is one of the six single-qubit Pauli-family symbols a
// Hamiltonian string term may reference.
type Operator int

const (
	OpNA Operator = iota
	OpI
	OpX
	OpY
	OpZ
	OpSP
	OpSM
)

// ParseOperator resolves an operator symbol string (I, X, Y, Z, SP, SM) to
// its Operator value, reporting OpNA for anything else.
func ParseOperator(s string) Operator {
	return operatorFromString(strings.ToUpper(s))
}

func operatorFromString(s string) Operator {
	switch s {
	case "I":
		return OpI
	case "X":
		return OpX
	case "Y":
		return OpY
	case "Z":
		return OpZ
	case "SP":
		return OpSP
	case "SM":
		return OpSM
	default:
		return OpNA
	}
}

func (o Operator) String() string {
	switch o {
	case OpI:
		return "I"
	case OpX:
		return "X"
	case OpY:
		return "Y"
	case OpZ:
		return "Z"
	case OpSP:
		return "SP"
	case OpSM:
		return "SM"
	default:
		return "NA"
	}
}

// QubitOp pairs an operator symbol with the qubit index it acts on.
type QubitOp struct {
	Op    Operator
	Qubit int
}

// Vars binds named scalars (e.g. "nu", "g") referenced by a Hamiltonian
// term's coefficient expression.
type Vars map[string]float64

// Builder is the minimal surface a term tree needs from the superoperator
// assembly stage. superop.Builder implements this.
type Builder interface {
	AddIndependentTerm(coeff complex128, ops []QubitOp) error
	AddDependentTerm(channel string, coeff complex128, ops []QubitOp) error
}

// Term is the tagged-variant interface implemented by Independent,
// Dependent, and Sum.
type Term interface {
	Apply(b Builder) error
	Clone() Term
}

// Independent is a time-independent term: coeff * op1[q1] (* op2[q2]).
type Independent struct {
	Coeff     complex128
	Operators []QubitOp
}

func (t *Independent) Apply(b Builder) error {
	return b.AddIndependentTerm(t.Coeff, t.Operators)
}

func (t *Independent) Clone() Term {
	ops := append([]QubitOp(nil), t.Operators...)
	return &Independent{Coeff: t.Coeff, Operators: ops}
}

// Dependent is a time-dependent term tagged with a drive (D<i>) or control
// (U<j>) channel: coeff * op1[q1] (* op2[q2]) || D<i>.
type Dependent struct {
	Channel   string
	Coeff     complex128
	Operators []QubitOp
}

func (t *Dependent) Apply(b Builder) error {
	return b.AddDependentTerm(t.Channel, t.Coeff, t.Operators)
}

func (t *Dependent) Clone() Term {
	ops := append([]QubitOp(nil), t.Operators...)
	return &Dependent{Channel: t.Channel, Coeff: t.Coeff, Operators: ops}
}

// Sum is a collection of terms produced either by distributing a
// parenthesized +/- expression across a shared prefix, or by expanding a
// _SUM[i,lo,hi,body] construct.
type Sum struct {
	Terms []Term
}

func (t *Sum) Apply(b Builder) error {
	for _, sub := range t.Terms {
		if err := sub.Apply(b); err != nil {
			return err
		}
	}
	return nil
}

func (t *Sum) Clone() Term {
	clones := make([]Term, len(t.Terms))
	for i, sub := range t.Terms {
		clones[i] = sub.Clone()
	}
	return &Sum{Terms: clones}
}

// ---- string grammar ----

func removeWhiteSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func isNumberString(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// getLastOperator strips the trailing `*Op<qubit>` token off s, returning
// the operator, the qubit index, and the remainder string. Operators are
// consumed right-to-left, matching the original parser's back-to-front scan.
func getLastOperator(s string) (QubitOp, string, bool) {
	pos := strings.LastIndex(s, "*")
	if pos < 0 {
		return QubitOp{}, "", false
	}

	opName := strings.ToUpper(s[pos+1:])
	splitIdx := -1
	for i, c := range opName {
		if c < 'A' || c > 'Z' {
			splitIdx = i
			break
		}
	}
	if splitIdx < 0 {
		return QubitOp{}, "", false
	}

	opStr := opName[:splitIdx]
	if len(opStr) < 1 || operatorFromString(opStr) == OpNA {
		return QubitOp{}, "", false
	}

	qubitIdxStr := opName[splitIdx:]
	if !isNumberString(qubitIdxStr) {
		return QubitOp{}, "", false
	}

	qIdx, err := strconv.Atoi(qubitIdxStr)
	if err != nil {
		return QubitOp{}, "", false
	}

	return QubitOp{Op: operatorFromString(opStr), Qubit: qIdx}, s[:pos], true
}

// unwrapOpExpression turns "blabla*(A +/- B)" into ["blabla*A", "(+-1.0)*blabla*B"],
// distributing a single top-level +/- across a shared prefix. Nested
// parentheses inside the wrapped expression are rejected, matching the
// original parser's one-level-only distribution rule.
func unwrapOpExpression(s string) []string {
	if !strings.HasSuffix(s, ")") {
		return nil
	}

	pos := strings.LastIndex(s, "(")
	if pos < 0 {
		return nil
	}

	coeffExpr := s[:pos]
	wrapped := s[pos+1 : len(s)-1]

	if strings.ContainsAny(wrapped, "()") {
		return nil
	}

	pmPos := strings.Index(wrapped, "+")
	if pmPos < 0 {
		pmPos = strings.Index(wrapped, "-")
	}
	if pmPos < 0 {
		return nil
	}
	sign := wrapped[pmPos]

	expr1 := wrapped[:pmPos]
	expr2 := wrapped[pmPos+1:]
	signExpr := "(" + string(sign) + "1.0)*"

	return []string{coeffExpr + expr1, signExpr + coeffExpr + expr2}
}

// parseIndependent parses a time-independent term string (no "||" channel
// separator).
func parseIndependent(s string, vars Vars) (Term, error) {
	s = removeWhiteSpaces(s)
	if strings.Contains(s, "||") {
		return nil, errors.Errorf("ham: %q is a time-dependent term", s)
	}

	if strings.HasSuffix(s, ")") {
		split := unwrapOpExpression(s)
		if len(split) != 2 {
			return nil, errors.Errorf("ham: cannot distribute parenthesized expression in %q", s)
		}
		t1, err := parseIndependent(split[0], vars)
		if err != nil {
			return nil, err
		}
		t2, err := parseIndependent(split[1], vars)
		if err != nil {
			return nil, err
		}
		return &Sum{Terms: []Term{t1, t2}}, nil
	}

	var ops []QubitOp
	rest := s
	for {
		op, remainder, ok := getLastOperator(rest)
		if !ok {
			break
		}
		ops = append(ops, op)
		rest = remainder
	}

	coeff, err := expr.Eval(rest, toExprVars(vars))
	if err != nil {
		return nil, errors.Wrapf(err, "ham: evaluating coefficient %q", rest)
	}

	reverse(ops)
	return &Independent{Coeff: complex(coeff, 0), Operators: ops}, nil
}

// parseDependent parses a time-dependent term string, which must end in a
// "||D<i>" or "||U<j>" channel tag.
func parseDependent(s string, vars Vars) (Term, error) {
	s = removeWhiteSpaces(s)
	sepPos := strings.Index(s, "||")
	if sepPos < 0 {
		return nil, errors.Errorf("ham: %q has no channel separator", s)
	}

	channel := strings.ToUpper(s[sepPos+2:])
	if len(channel) < 2 || (channel[0] != 'D' && channel[0] != 'U') || !isNumberString(channel[1:]) {
		return nil, errors.Errorf("ham: %q is not a valid channel tag", channel)
	}

	opExpr := s[:sepPos]
	if strings.HasSuffix(opExpr, ")") {
		split := unwrapOpExpression(opExpr)
		if len(split) != 2 {
			return nil, errors.Errorf("ham: cannot distribute parenthesized expression in %q", opExpr)
		}
		t1, err := parseDependent(split[0]+s[sepPos:], vars)
		if err != nil {
			return nil, err
		}
		t2, err := parseDependent(split[1]+s[sepPos:], vars)
		if err != nil {
			return nil, err
		}
		return &Sum{Terms: []Term{t1, t2}}, nil
	}

	var ops []QubitOp
	rest := opExpr
	for {
		op, remainder, ok := getLastOperator(rest)
		if !ok {
			break
		}
		ops = append(ops, op)
		rest = remainder
	}

	coeff, err := expr.Eval(rest, toExprVars(vars))
	if err != nil {
		return nil, errors.Wrapf(err, "ham: evaluating coefficient %q", rest)
	}

	reverse(ops)
	return &Dependent{Channel: channel, Coeff: complex(coeff, 0), Operators: ops}, nil
}

var loopTemplateRE = regexp.MustCompile(`\{.*?\}`)

// parseSum parses a _SUM[i,lo,hi,body] construct, expanding it into an
// inclusive-range unrolled Sum of either all-Dependent or all-Independent
// terms. Mixed-variant expansions (some iterations time-dependent, others
// not) are rejected rather than silently coerced.
func parseSum(s string, vars Vars) (Term, error) {
	const prefix = "_SUM["
	s = removeWhiteSpaces(s)
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, "]") {
		return nil, errors.Errorf("ham: %q is not a _SUM term", s)
	}
	body := s[len(prefix) : len(s)-1]

	parts := strings.SplitN(body, ",", 4)
	if len(parts) != 4 {
		return nil, errors.Errorf("ham: _SUM requires 4 comma-separated fields, got %q", body)
	}
	loopVar, startStr, endStr, loopExpr := parts[0], parts[1], parts[2], parts[3]
	varFmt := "{" + loopVar + "}"

	if loopVar == "" || startStr == "" || endStr == "" || loopExpr == "" ||
		!isNumberString(startStr) || !isNumberString(endStr) ||
		!strings.Contains(loopExpr, varFmt) {
		return nil, errors.Errorf("ham: malformed _SUM term %q", s)
	}

	start, err := strconv.Atoi(startStr)
	if err != nil {
		return nil, errors.Wrap(err, "ham: parsing _SUM start bound")
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return nil, errors.Wrap(err, "ham: parsing _SUM end bound")
	}
	if start > end {
		return nil, errors.Errorf("ham: _SUM start %d exceeds end %d", start, end)
	}

	resolve := func(val int) (string, error) {
		return resolveLoopTemplate(loopExpr, loopVar, varFmt, val)
	}

	firstResolved, err := resolve(start)
	if err != nil {
		return nil, err
	}

	_, errIndep := parseIndependent(firstResolved, vars)
	_, errDep := parseDependent(firstResolved, vars)
	isDependent := errDep == nil
	if errIndep != nil && errDep != nil {
		return nil, errors.Errorf("ham: _SUM body %q is neither a valid independent nor dependent term", firstResolved)
	}

	terms := make([]Term, 0, end-start+1)
	for i := start; i <= end; i++ {
		resolved, err := resolve(i)
		if err != nil {
			return nil, err
		}
		var term Term
		if isDependent {
			term, err = parseDependent(resolved, vars)
		} else {
			term, err = parseIndependent(resolved, vars)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "ham: _SUM expansion mixed variants at i=%d", i)
		}
		terms = append(terms, term)
	}

	return &Sum{Terms: terms}, nil
}

// resolveLoopTemplate substitutes every {...} placeholder found in
// loopExpr with its value at loop variable val: the fast path for the bare
// {i} placeholder assigns val directly, and any other placeholder is
// evaluated as a scalar expression with the loop variable bound.
func resolveLoopTemplate(loopExpr, loopVar, varFmt string, val int) (string, error) {
	matches := loopTemplateRE.FindAllString(loopExpr, -1)
	seen := map[string]int{}
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		if m == varFmt {
			seen[m] = val
			continue
		}
		inner := m[1 : len(m)-1]
		v, err := expr.Eval(inner, expr.Vars{loopVar: float64(val)})
		if err != nil {
			return "", errors.Wrapf(err, "ham: evaluating loop placeholder %q", m)
		}
		seen[m] = int(v)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := loopExpr
	for _, k := range keys {
		result = strings.ReplaceAll(result, k, strconv.Itoa(seen[k]))
	}
	return result, nil
}

// Parse dispatches a single Hamiltonian term string through Sum, then
// Dependent, then Independent, in that order, matching the original
// parser's try-in-order fallback.
func Parse(s string, vars Vars) (Term, error) {
	if t, err := parseSum(s, vars); err == nil {
		return t, nil
	}
	if t, err := parseDependent(s, vars); err == nil {
		return t, nil
	}
	if t, err := parseIndependent(s, vars); err == nil {
		return t, nil
	}
	return nil, errors.Errorf("ham: cannot parse Hamiltonian term %q", s)
}

// ParseAll parses every term string in strs, short-circuiting on the first
// parse failure with the offending term identified in the error.
func ParseAll(strs []string, vars Vars) ([]Term, error) {
	terms := make([]Term, 0, len(strs))
	for _, s := range strs {
		t, err := Parse(s, vars)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, nil
}

func toExprVars(v Vars) expr.Vars {
	if v == nil {
		return nil
	}
	out := make(expr.Vars, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func reverse(ops []QubitOp) {
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
}
