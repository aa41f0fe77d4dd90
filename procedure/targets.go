package procedure

// Verdict is the overall outcome of a procedure
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictPass
	VerdictMarginal
	VerdictFail
	VerdictAborted
	VerdictNotEvaluated
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "PASS"
	case VerdictMarginal:
		return "MARGINAL"
	case VerdictFail:
		return "FAIL"
	case VerdictAborted:
		return "ABORTED"
	case VerdictNotEvaluated:
		return "NOT EVALUATED"
	default:
		fallthrough
	case VerdictNone:
		return "NONE"
	}
}

// Targets are the tuning guide's performance goals. Good earns PASS,
// between Good and Acceptable earns MARGINAL, beyond Acceptable is FAIL.
type Targets struct {
	SettlingGood       float64
	SettlingAcceptable float64

	OvershootGood       float64
	OvershootAcceptable float64

	SSErrorGood       float64
	SSErrorAcceptable float64

	RecoveryGood       float64
	RecoveryAcceptable float64

	NoiseGood       float64
	NoiseAcceptable float64
}

// DefaultTargets are from the tuning guide
var DefaultTargets = Targets{
	SettlingGood:        2.0,
	SettlingAcceptable:  3.0,
	OvershootGood:       5.0,
	OvershootAcceptable: 10.0,
	SSErrorGood:         8.0,
	SSErrorAcceptable:   15.0,
	RecoveryGood:        2.0,
	RecoveryAcceptable:  3.0,
	NoiseGood:           10.0,
	NoiseAcceptable:     20.0,
}

// grade scores an absolute measurement against a good/acceptable pair.
// Negative measurements mean the value could not be determined.
func grade(value, good, acceptable float64) Verdict {
	switch {
	case value < 0:
		return VerdictNotEvaluated
	case value <= good:
		return VerdictPass
	case value <= acceptable:
		return VerdictMarginal
	default:
		return VerdictFail
	}
}

// worse returns the worse of two verdicts
func worse(a, b Verdict) Verdict {
	rank := func(v Verdict) int {
		switch v {
		case VerdictFail:
			return 3
		case VerdictMarginal:
			return 2
		case VerdictPass:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
