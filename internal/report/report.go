// Package report renders population statistics as plain text.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/dilemma/internal/engine"
)

// Statistics formats a snapshot the way the live statistics pane shows it:
// totals first, then one line per strategy, largest group first.
func Statistics(snap *engine.Snapshot) string {
	if snap == nil {
		return ""
	}
	var b strings.Builder
	st := snap.Stats
	fmt.Fprintf(&b, "Rounds: %s\n", humanize.Comma(int64(st.Cycles)))
	fmt.Fprintf(&b, "Last round time: %d ms\n", st.LastCycleTime.Milliseconds())
	fmt.Fprintf(&b, "Games played: %s\n", humanize.Comma(int64(st.Games)))
	fmt.Fprintf(&b, "Died: %s\n", humanize.Comma(int64(st.Deaths)))
	fmt.Fprintf(&b, "Born: %s\n", humanize.Comma(int64(st.Births)))
	fmt.Fprintf(&b, "Total population: %s\n", humanize.Comma(int64(snap.Population)))
	for _, g := range snap.ByStrategy() {
		fmt.Fprintf(&b, "    %q: %.2f%% (average energy: %.2f)\n", g.Label, g.Share*100, g.AverageEnergy)
	}
	return b.String()
}

// Summary is a one-line digest for logs and terminals.
func Summary(snap *engine.Snapshot) string {
	if snap == nil {
		return "not started"
	}
	leader := "none"
	if groups := snap.ByStrategy(); len(groups) > 0 {
		leader = fmt.Sprintf("%s (%.0f%%)", groups[0].Label, groups[0].Share*100)
	}
	return fmt.Sprintf("cycle %s, %s alive, leader %s, snapshot %s",
		humanize.Comma(int64(snap.Cycle)),
		humanize.Comma(int64(snap.Population)),
		leader,
		humanize.RelTime(snap.TakenAt, time.Now(), "ago", "from now"),
	)
}
