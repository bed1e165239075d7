package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Share is one participant's portion of a transaction.
// ParticipantID is a user ID, or "external:<email>" for non-members.
type Share struct {
	ParticipantID string
	Amount        decimal.Decimal
	Paid          bool
}

// TransactionForBalance holds the minimal information needed for balance calculations.
// The creator fronted the full amount and is owed every unpaid share but their own.
type TransactionForBalance struct {
	ID        string
	CircleID  string
	CreatorID string
	Shares    []Share
}

// MemberBalance is the outstanding position of one participant.
type MemberBalance struct {
	MemberID   string          `json:"member_id"`
	NetBalance decimal.Decimal `json:"net_balance"` // Positive = owed money, Negative = owes money
	TotalLent  decimal.Decimal `json:"total_lent"`  // Unpaid shares others owe this member
	TotalOwed  decimal.Decimal `json:"total_owed"`  // Unpaid shares this member owes others
}

// DebtEdge represents a debt from one participant to another.
type DebtEdge struct {
	From   string          `json:"from"` // Who owes
	To     string          `json:"to"`   // Who is owed
	Amount decimal.Decimal `json:"amount"`
}

// pendingDebts walks every unpaid share that is owed to someone else.
func pendingDebts(txns []TransactionForBalance, fn func(t TransactionForBalance, s Share)) {
	for _, t := range txns {
		for _, s := range t.Shares {
			if s.Paid || s.ParticipantID == t.CreatorID || !s.Amount.IsPositive() {
				continue
			}
			fn(t, s)
		}
	}
}

// CalculateCircleBalances aggregates outstanding shares across a circle's transactions
// and returns per-member balances plus a simplified list of who should pay whom.
//
// Algorithm:
//   - For each unpaid share: creator lent +amount, participant owes +amount
//   - net_balance = total_lent - total_owed
//   - Debt list: greedy matching of the largest debtor with the largest creditor
func CalculateCircleBalances(txns []TransactionForBalance) ([]MemberBalance, []DebtEdge) {
	balances := make(map[string]*MemberBalance)
	get := func(id string) *MemberBalance {
		b, ok := balances[id]
		if !ok {
			b = &MemberBalance{MemberID: id}
			balances[id] = b
		}
		return b
	}

	pendingDebts(txns, func(t TransactionForBalance, s Share) {
		get(t.CreatorID).TotalLent = get(t.CreatorID).TotalLent.Add(s.Amount)
		get(s.ParticipantID).TotalOwed = get(s.ParticipantID).TotalOwed.Add(s.Amount)
	})

	memberBalances := make([]MemberBalance, 0, len(balances))
	for _, b := range balances {
		b.NetBalance = b.TotalLent.Sub(b.TotalOwed)
		memberBalances = append(memberBalances, *b)
	}
	sort.Slice(memberBalances, func(i, j int) bool {
		return memberBalances[i].MemberID < memberBalances[j].MemberID
	})

	return memberBalances, simplifyDebts(memberBalances)
}

type position struct {
	id     string
	amount decimal.Decimal
}

// simplifyDebts matches debtors with creditors to minimize the number of payments.
func simplifyDebts(balances []MemberBalance) []DebtEdge {
	var creditors, debtors []position
	for _, b := range balances {
		switch {
		case b.NetBalance.IsPositive():
			creditors = append(creditors, position{b.MemberID, b.NetBalance})
		case b.NetBalance.IsNegative():
			debtors = append(debtors, position{b.MemberID, b.NetBalance.Neg()})
		}
	}
	byAmount := func(p []position) func(i, j int) bool {
		return func(i, j int) bool {
			if c := p[i].amount.Cmp(p[j].amount); c != 0 {
				return c > 0
			}
			return p[i].id < p[j].id
		}
	}
	sort.Slice(creditors, byAmount(creditors))
	sort.Slice(debtors, byAmount(debtors))

	var edges []DebtEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := decimal.Min(debtors[i].amount, creditors[j].amount)
		if amount.IsPositive() {
			edges = append(edges, DebtEdge{From: debtors[i].id, To: creditors[j].id, Amount: amount})
		}

		debtors[i].amount = debtors[i].amount.Sub(amount)
		creditors[j].amount = creditors[j].amount.Sub(amount)

		if !debtors[i].amount.IsPositive() {
			i++
		}
		if !creditors[j].amount.IsPositive() {
			j++
		}
	}
	return edges
}

// Totals is an owed-to-me / I-owe pair.
type Totals struct {
	OwedToMe decimal.Decimal `json:"owed_to_me"`
	IOwe     decimal.Decimal `json:"i_owe"`
	Net      decimal.Decimal `json:"net"`
}

func (t *Totals) finish() {
	t.Net = t.OwedToMe.Sub(t.IOwe)
}

// CircleTotals is the user's position within one circle.
type CircleTotals struct {
	CircleID string `json:"circle_id"`
	Totals
}

// CounterpartyTotals is the user's position against one other participant.
type CounterpartyTotals struct {
	ParticipantID string `json:"participant_id"`
	Totals
}

// UserSummary is the dashboard view of a user's outstanding balances.
type UserSummary struct {
	Totals
	PendingCount   int                  `json:"pending_count"`
	Circles        []CircleTotals       `json:"circles"`
	Counterparties []CounterpartyTotals `json:"counterparties"`
}

// SummarizeUser computes what userID is owed and owes across the given transactions.
// Unpaid shares of others on transactions userID created count as owed to them;
// userID's own unpaid shares on others' transactions count as owing.
func SummarizeUser(userID string, txns []TransactionForBalance) UserSummary {
	summary := UserSummary{}
	circles := make(map[string]*CircleTotals)
	counterparties := make(map[string]*CounterpartyTotals)

	circle := func(id string) *CircleTotals {
		c, ok := circles[id]
		if !ok {
			c = &CircleTotals{CircleID: id}
			circles[id] = c
		}
		return c
	}
	counterparty := func(id string) *CounterpartyTotals {
		c, ok := counterparties[id]
		if !ok {
			c = &CounterpartyTotals{ParticipantID: id}
			counterparties[id] = c
		}
		return c
	}

	pendingDebts(txns, func(t TransactionForBalance, s Share) {
		switch {
		case t.CreatorID == userID:
			summary.OwedToMe = summary.OwedToMe.Add(s.Amount)
			c := circle(t.CircleID)
			c.OwedToMe = c.OwedToMe.Add(s.Amount)
			p := counterparty(s.ParticipantID)
			p.OwedToMe = p.OwedToMe.Add(s.Amount)
		case s.ParticipantID == userID:
			summary.IOwe = summary.IOwe.Add(s.Amount)
			summary.PendingCount++
			c := circle(t.CircleID)
			c.IOwe = c.IOwe.Add(s.Amount)
			p := counterparty(t.CreatorID)
			p.IOwe = p.IOwe.Add(s.Amount)
		}
	})

	summary.finish()
	summary.Circles = make([]CircleTotals, 0, len(circles))
	for _, c := range circles {
		c.finish()
		summary.Circles = append(summary.Circles, *c)
	}
	sort.Slice(summary.Circles, func(i, j int) bool {
		return summary.Circles[i].CircleID < summary.Circles[j].CircleID
	})

	summary.Counterparties = make([]CounterpartyTotals, 0, len(counterparties))
	for _, p := range counterparties {
		p.finish()
		summary.Counterparties = append(summary.Counterparties, *p)
	}
	sort.Slice(summary.Counterparties, func(i, j int) bool {
		return summary.Counterparties[i].ParticipantID < summary.Counterparties[j].ParticipantID
	})

	return summary
}
