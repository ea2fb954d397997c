package domain

// Verdict is the outcome of reconciling one metric on one (asset, date).
type Verdict string

const (
	VerdictPass          Verdict = "PASS"
	VerdictWarn          Verdict = "WARN"
	VerdictFail          Verdict = "FAIL"
	VerdictMissingDaily  Verdict = "MISSING_DAILY"
	VerdictMissingHourly Verdict = "MISSING_HOURLY"
)

// verdictRank orders verdicts for day-status rollups: FAIL over WARN over
// PASS over the MISSING states. A day with any stated disagreement outranks
// one that merely lacks a grain.
var verdictRank = map[Verdict]int{
	VerdictMissingDaily:  0,
	VerdictMissingHourly: 0,
	VerdictPass:          1,
	VerdictWarn:          2,
	VerdictFail:          3,
}

// WorseVerdict returns the more severe of two verdicts.
func WorseVerdict(a, b Verdict) Verdict {
	if verdictRank[b] > verdictRank[a] {
		return b
	}
	return a
}

// Classification is the outcome of a cross-source comparison group.
type Classification string

const (
	ClassConsistent   Classification = "CONSISTENT"
	ClassAcceptable   Classification = "ACCEPTABLE"
	ClassInconsistent Classification = "INCONSISTENT"
	ClassSingleSource Classification = "SINGLE_SOURCE"
	ClassNoData       Classification = "NO_DATA"
)

// Agrees reports whether the classification resolves an open streak.
func (c Classification) Agrees() bool {
	return c == ClassConsistent || c == ClassAcceptable
}

// StreakStatus is the lifecycle state of an inconsistency streak.
type StreakStatus string

const (
	StreakActive    StreakStatus = "ACTIVE"
	StreakResolved  StreakStatus = "RESOLVED"
	StreakEscalated StreakStatus = "ESCALATED"
)

// ExpectedHourlyReports is the hourly report count a complete business day
// delivers.
const ExpectedHourlyReports = 24

// Coverage states of one asset-day.
const (
	CoverageComplete   = "COMPLETE"
	CoverageIncomplete = "INCOMPLETE"
	CoverageNoData     = "NO_DATA"
)
