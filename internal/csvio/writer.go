package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/congo-pay/ledger-replay/internal/ledger"
)

// MoneyPlaces is the number of decimal places used for monetary output.
const MoneyPlaces = 4

var reportHeader = []string{"client", "available", "held", "total", "locked"}

// WriteAccounts writes the final account states as CSV ordered by client.
func WriteAccounts(w io.Writer, accounts []ledger.Account) error {
	sorted := make([]ledger.Account, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Client < sorted[j].Client })

	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, a := range sorted {
		row := []string{
			strconv.FormatUint(uint64(a.Client), 10),
			a.Available.StringFixed(MoneyPlaces),
			a.Held.StringFixed(MoneyPlaces),
			a.Total.StringFixed(MoneyPlaces),
			strconv.FormatBool(a.Locked),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write account %d: %w", a.Client, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush accounts: %w", err)
	}
	return nil
}
