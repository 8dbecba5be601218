/*
synth.go - Derived field synthesis for one period row

PURPOSE:
  Given a located row and a payment, computes every field the engine owns
  and renders them as one batch of positional cell writes.

RULES (DueDay = 5, GraceDays = 2, fee = 3000):
  paid_after = paid_before + amount
  net        = prev_balance + paid_after - credit - amount_due
  penalty    = fee  if date_paid > date_due + grace AND net <= 0
               0    otherwise
  balance    = net - penalty

  prev_balance is the Prepayment/Arrears cell of the physically preceding
  data row. The first data row has no prev term. A prev cell that is not a
  number counts as 0 for that term only.

CREDIT-FUNDED ROWS:
  Rows created by the prepayment loop are paid out of the previous row's
  surplus, which is already inside prev_balance. Their Amount Paid records
  the coverage, and credit (= amount_due) removes it again so the surplus
  is not counted twice. A pre-filled row carries the reference of the
  payment that produced the surplus as its first REF Number, and that
  reference also sits on an earlier row. Comments are not consulted; the
  operator may edit them.

  The credit term is an intentional departure from the plain rolling rule
  (prev + paid - due - penalty). Without it a pre-filled month would carry
  the surplus forward twice.

WRITTEN FIELDS (one BatchUpdate):
  Month, Amount paid, Date paid, REF Number, Date due, Penalties,
  Prepayment/Arrears

FORMULA MODE:
  With Rules.Formulas the last two are written as expressions that
  recompute in the sheet. Every referenced cell is wrapped so a bad value
  reads as 0 (numbers) or "not a date" (dates) instead of an error.
*/
package rent

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// SETTLEMENT - Penalty and rolling balance
// =============================================================================

type rowFigures struct {
	prev    generic.Amount
	hasPrev bool
	paid    generic.Amount
	due     generic.Amount
	credit  generic.Amount

	paidAt  time.Time
	dueDate time.Time
	dated   bool // both dates known
}

// settle applies the penalty and rolling-balance rules.
func (r Rules) settle(f rowFigures) (penalty, balance generic.Amount) {
	net := f.paid.Sub(f.credit).Sub(f.due)
	if f.hasPrev {
		net = f.prev.Add(net)
	}
	penalty = generic.NewAmount(0)
	if f.dated && r.IsLate(f.paidAt, f.dueDate) && !net.IsPositive() {
		penalty = r.PenaltyFee
	}
	return penalty, net.Sub(penalty)
}

// =============================================================================
// SYNTHESIS
// =============================================================================

type synthesis struct {
	idx        int
	label      string
	paidBefore generic.Amount
	paidAfter  generic.Amount
	due        generic.Amount
	dueDate    time.Time
	penalty    generic.Amount
	balance    generic.Amount

	values map[Column]string // what the cache holds after the write
	cells  []generic.CellUpdate
}

// prevBalance is the rolling term for row i.
func (l *ledger) prevBalance(i int) (generic.Amount, bool) {
	if i <= 0 {
		return generic.NewAmount(0), false
	}
	return l.amount(i-1, ColBalance), true
}

// refTokens splits a REF Number cell into its references.
func refTokens(cell string) []string {
	var refs []string
	for _, r := range strings.Split(cell, ",") {
		if r = strings.TrimSpace(r); r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

// creditFunded reports whether row i was pre-filled from an earlier surplus:
// its first reference already appears on an earlier data row. REF Number is
// append-only, so later payments on the row do not change the answer.
func (l *ledger) creditFunded(i int) bool {
	own := refTokens(l.get(i, ColRef))
	if len(own) == 0 {
		return false
	}
	for j := 0; j < i; j++ {
		if slices.Contains(refTokens(l.get(j, ColRef)), own[0]) {
			return true
		}
	}
	return false
}

// appendRef joins a reference onto the existing REF Number text.
func appendRef(prior, ref string) string {
	prior = strings.TrimSpace(prior)
	if prior == "" {
		return ref
	}
	return prior + ", " + ref
}

// synthesize computes row i after p. funded marks a row paid out of an
// earlier surplus.
func (s *Session) synthesize(l *ledger, i int, m generic.Month, p Payment, funded bool) synthesis {
	rules := s.engine.rules

	syn := synthesis{
		idx:        i,
		label:      strings.TrimSpace(l.get(i, ColMonth)),
		paidBefore: l.amount(i, ColAmountPaid),
		due:        l.amount(i, ColAmountDue),
		dueDate:    rules.DueDate(m),
	}
	if syn.label == "" {
		syn.label = l.style.Format(m)
	}
	syn.paidAfter = syn.paidBefore.Add(p.Amount)

	f := rowFigures{
		paid:    syn.paidAfter,
		due:     syn.due,
		paidAt:  p.DatePaid,
		dueDate: syn.dueDate,
		dated:   true,
	}
	f.prev, f.hasPrev = l.prevBalance(i)
	if funded {
		f.credit = syn.due
	}
	syn.penalty, syn.balance = rules.settle(f)

	syn.values = map[Column]string{
		ColMonth:      syn.label,
		ColAmountPaid: syn.paidAfter.String(),
		ColDatePaid:   FormatDatePaid(p.DatePaid),
		ColRef:        appendRef(l.get(i, ColRef), p.Reference),
		ColDateDue:    FormatDateDue(syn.dueDate),
		ColPenalties:  syn.penalty.String(),
		ColBalance:    syn.balance.String(),
	}

	written := make(map[Column]string, len(syn.values))
	for c, v := range syn.values {
		written[c] = v
	}
	if rules.Formulas {
		written[ColPenalties], written[ColBalance] = s.formulas(l, i, funded)
	}

	row := l.sheetRow(i)
	for _, c := range []Column{ColMonth, ColAmountPaid, ColDatePaid, ColRef, ColDateDue, ColPenalties, ColBalance} {
		syn.cells = append(syn.cells, generic.CellUpdate{Row: row, Col: l.cols[c] + 1, Value: written[c]})
	}
	return syn
}

// =============================================================================
// FORMULAS
// =============================================================================

// num reads a cell as a number, 0 when it is text or an error.
func num(ref string) string {
	return "IFERROR(N(" + ref + "),0)"
}

// dateOf reads a cell as a date serial, "" when it is not a date. Text
// dates are parsed from their first ten characters ("05/09/2025 ...").
func dateOf(ref string, timestamp bool) string {
	text := ref
	if timestamp {
		text = "LEFT(" + ref + ",10)"
	}
	return fmt.Sprintf(`IFERROR(IF(ISTEXT(%s),DATEVALUE(%s),%s),"")`, ref, text, ref)
}

// formulas renders the Penalties and Prepayment/Arrears expressions for row i.
func (s *Session) formulas(l *ledger, i int, credit bool) (penalty, balance string) {
	rules := s.engine.rules
	row := l.sheetRow(i)
	ref := func(c Column, r int) string { return generic.A1(r, l.cols[c]+1) }

	net := num(ref(ColAmountPaid, row)) + "-" + num(ref(ColAmountDue, row))
	if credit {
		net += "-" + num(ref(ColAmountDue, row))
	}
	if i > 0 {
		net = num(ref(ColBalance, row-1)) + "+" + net
	}

	paidAt := dateOf(ref(ColDatePaid, row), true)
	dueAt := dateOf(ref(ColDateDue, row), false)
	penalty = fmt.Sprintf("=IFERROR(IF(AND(ISNUMBER(%s),ISNUMBER(%s)),IF(AND(INT(%s)>%s+%d,(%s)<=0),%s,0),0),0)",
		paidAt, dueAt, paidAt, dueAt, rules.GraceDays, net, rules.PenaltyFee)
	balance = fmt.Sprintf("=IFERROR(%s-%s,0)", net, num(ref(ColPenalties, row)))
	return penalty, balance
}
