package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/premarket-labs/spreadbot/internal/domain"
)

// FormatAlert builds the human-readable alert message delivered to chat
// channels. Both alert variants render through their TradeView projection.
func FormatAlert(alert domain.Alert, prefix string, links map[string]string) string {
	core := alert.Core()
	trade := alert.TradeView()
	ts := time.UnixMilli(core.UpdatedAtMs).UTC()

	header := strings.TrimSpace(strings.TrimSpace(prefix) + " " + core.Token)
	lines := []string{
		header,
		fmt.Sprintf("Buy %s @ %.6g | Sell %s @ %.6g",
			trade.BuyLabel, trade.BuyPrice, trade.SellLabel, trade.SellPrice),
		fmt.Sprintf("Gross %.2f%% | Net %.2f%% | Ref ~%.2f USDT",
			core.GrossSpreadPercent, core.NetSpreadPercent, core.ReferenceNotional),
		"Updated: " + ts.Format(time.RFC3339),
	}

	var extras []string
	if link := links[trade.BuyVenue]; link != "" {
		extras = append(extras, "Buy venue: "+link)
	}
	if link := links[trade.SellVenue]; link != "" {
		extras = append(extras, "Sell venue: "+link)
	}
	if len(extras) > 0 {
		lines = append(lines, strings.Join(extras, " | "))
	}

	return strings.Join(lines, "\n")
}
