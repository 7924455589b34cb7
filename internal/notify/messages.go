package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// LaunchMessage describes a market that left its curve.
func LaunchMessage(m domain.Market, launch domain.Event) (title, body string) {
	title = fmt.Sprintf("%s (%s) launched", m.Name, m.Symbol)
	var b strings.Builder
	fmt.Fprintf(&b, "market: %s\n", m.Address.Hex())
	fmt.Fprintf(&b, "venue: %s\n", launch.Recipient.Hex())
	fmt.Fprintf(&b, "reserve handed over: %s\n", domain.FormatUnits(launch.NativeAmount, 6))
	fmt.Fprintf(&b, "tokens handed over: %s\n", domain.FormatUnits(launch.TokenAmount, 2))
	fmt.Fprintf(&b, "listing fee: %s", domain.FormatUnits(launch.Fee, 6))
	return title, b.String()
}

// HaltMessage describes a market frozen after its reserve check failed.
func HaltMessage(market common.Address, cause error) (title, body string) {
	return "Market halted", fmt.Sprintf("market: %s\nreason: %v", market.Hex(), cause)
}

// ArchiveMessage reports a completed event export.
func ArchiveMessage(since, until time.Time, count int64) (title, body string) {
	return "Events archived", fmt.Sprintf("%d events from %s to %s",
		count, since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339))
}
