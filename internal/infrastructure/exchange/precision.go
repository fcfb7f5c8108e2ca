package exchange

import "strings"

// StepPrecision derives the number of decimal places from a step size string
// such as "0.00100000" (-> 3) or "1" (-> 0). Unparseable inputs fall back to
// a conservative 6 decimals.
func StepPrecision(step string) int {
	step = strings.TrimSpace(step)
	if step == "" {
		return 6
	}
	dot := strings.IndexByte(step, '.')
	if dot < 0 {
		return 0
	}
	frac := step[dot+1:]
	last := strings.LastIndexFunc(frac, func(r rune) bool { return r != '0' })
	if last < 0 {
		return 0
	}
	return last + 1
}
