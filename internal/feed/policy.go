package feed

// Scoring and shaping policy for the engine. Urgency is an integer in
// [0, maxUrgency]; each detector contributes a base score plus an age- or
// count-scaled bonus with its own cap, so scores stay monotonic in how
// overdue or blocking the condition is without ever leaving the range.

const (
	maxUrgency = 1000

	attentionCap      = 6
	entityTimelineCap = 3
	fullFeedCap       = 100

	// Each source query caps its own rows; the engine fans out to many
	// sources per request, so per-source slices stay in the dozens.
	sourceRowCap = 50

	invoiceOverdueBase     = 500
	invoiceOverduePerDay   = 10
	invoiceOverdueMaxBonus = 400

	jobNoInvoiceGraceDays = 3
	jobNoInvoiceBase      = 400
	jobNoInvoicePerDay    = 8
	jobNoInvoiceMaxBonus  = 300

	certNotIssuedBase     = 350
	certNotIssuedPerDay   = 5
	certNotIssuedMaxBonus = 250

	openSnagsBase     = 300
	openSnagsPerItem  = 25
	openSnagsMaxBonus = 200

	quoteNoJobGraceDays = 7
	quoteNoJobBase      = 250
	quoteNoJobPerDay    = 5
	quoteNoJobMaxBonus  = 200

	missingTimesheetBase         = 200
	missingTimesheetLookbackDays = 7
)

func clampUrgency(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxUrgency {
		return maxUrgency
	}
	return score
}

func agedBonus(days, perDay, cap int) int {
	if days < 0 {
		days = 0
	}
	bonus := days * perDay
	if bonus > cap {
		return cap
	}
	return bonus
}
