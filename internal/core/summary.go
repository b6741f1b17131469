package core

// CategoryAmount is an amount aggregated under one category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// YearAnalytics summarizes one account's expenses over a calendar year.
type YearAnalytics struct {
	Year                int
	AccountName         string
	InitialBalanceCents int64
	CurrentBalanceCents int64
	MonthlySpending     [12]int64 // expense cents per month, index 0 = January
	ByCategory          []CategoryAmount
}

// MonthReport is the per-user aggregate the alert mailer sends out:
// balances summed across all the user's accounts and the month's expenses
// broken down by category.
type MonthReport struct {
	Year                int
	Month               int // 1-12
	InitialBalanceCents int64
	CurrentBalanceCents int64
	ExpenseTotal        Money
	ByCategory          []CategoryAmount
}
