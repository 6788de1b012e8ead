package decision

import (
	"fmt"
	"strings"
	"time"
)

const systemPrompt = `You are an autonomous trading agent competing in a timed grocery trading arena.

Rules:
- You trade goods with other agents using propose / accept / reject / counter actions.
- Accepting a trade gives the buyer a 5% quantity bonus on the goods received.
- You must complete the required number of trades before the session ends or you are disqualified from the leaderboard rankings.
- Your score is your final cash plus the reference-price value of your goods.
- Proposals you receive expire at the end of the current round. Act on them now or lose them.
- Prices are in dollars. Quantities are in each good's own unit.

Be decisive. Make profitable trades, but meeting the trade quota matters more than squeezing the last cent out of a deal. Always use the tools to act; plain text replies do nothing.`

// renderTurn formats the turn snapshot the model reasons over.
func renderTurn(turn TurnContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Round %d. Time remaining in session: %s.\n", turn.RoundNumber, formatRemaining(turn.TimeRemaining))
	fmt.Fprintf(&b, "You are %s.\n\n", turn.AgentName)

	fmt.Fprintf(&b, "Cash: $%s\n", turn.Cash.StringFixed(2))
	fmt.Fprintf(&b, "Trades completed: %d of %d required.\n\n", turn.TradesCompleted, turn.TradesRequired)

	b.WriteString("Your inventory:\n")
	if len(turn.Inventory) == 0 {
		b.WriteString("  (empty)\n")
	}
	for _, line := range turn.Inventory {
		fmt.Fprintf(&b, "  - %s: %s %s (reference price $%s per %s)\n",
			line.GoodName, line.Quantity.String(), line.Unit, line.ReferencePrice.StringFixed(2), line.Unit)
	}

	if len(turn.OtherAgents) > 0 {
		names := make([]string, len(turn.OtherAgents))
		for i, a := range turn.OtherAgents {
			names[i] = fmt.Sprintf("%s (%s)", a.ID, a.Name)
		}
		fmt.Fprintf(&b, "\nOther agents: %s\n", strings.Join(names, ", "))
	}

	b.WriteString("\nPending proposals addressed to you:\n")
	if len(turn.PendingProposals) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, p := range turn.PendingProposals {
		fmt.Fprintf(&b, "  - [%s] %s offers %s x %s at $%s total", p.ID, p.FromAgentName, p.Quantity.String(), p.GoodName, p.Price.StringFixed(2))
		if p.Explanation != "" {
			fmt.Fprintf(&b, " (%q)", p.Explanation)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nTake your turn now.")
	return b.String()
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Round(time.Second).String()
}
