package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledger-replay/internal/engine"
	"github.com/congo-pay/ledger-replay/internal/ledger"
)

// ParseError describes an input record that could not be turned into an event.
type ParseError struct {
	Line uint64
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNegativeAmount = errors.New("negative amount")

type columns struct {
	kind, client, tx, amount int
}

var defaultColumns = columns{kind: 0, client: 1, tx: 2, amount: 3}

// Reader pulls events one record at a time from CSV input with the columns
// type, client, tx and amount. Malformed records are logged and skipped.
type Reader struct {
	csv        *csv.Reader
	logger     *slog.Logger
	cols       columns
	headerSeen bool
	line       uint64
	malformed  uint64
}

// NewReader wraps r. A nil logger falls back to slog.Default.
func NewReader(r io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &Reader{csv: cr, logger: logger, cols: defaultColumns}
}

// Next returns the next well-formed event, or io.EOF once the input is
// exhausted. Any other error means the input can no longer be read.
func (r *Reader) Next() (engine.Event, error) {
	for {
		rec, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return engine.Event{}, io.EOF
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return engine.Event{}, fmt.Errorf("read input: %w", err)
			}
			r.line++
			r.skip(err)
			continue
		}

		if !r.headerSeen {
			r.headerSeen = true
			if cols, ok := parseHeader(rec); ok {
				r.cols = cols
				continue
			}
		}

		r.line++
		ev, err := r.parse(rec)
		if err != nil {
			r.skip(err)
			continue
		}
		return ev, nil
	}
}

// Line reports how many data records have been consumed, malformed ones
// included.
func (r *Reader) Line() uint64 {
	return r.line
}

// Malformed reports how many records were skipped.
func (r *Reader) Malformed() uint64 {
	return r.malformed
}

func (r *Reader) skip(err error) {
	r.malformed++
	perr := &ParseError{Line: r.line, Err: err}
	r.logger.Warn("malformed record skipped", slog.Uint64("line", r.line), slog.Any("error", perr))
}

func (r *Reader) parse(rec []string) (engine.Event, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	kind, err := engine.ParseKind(field(r.cols.kind))
	if err != nil {
		return engine.Event{}, err
	}
	client, err := strconv.ParseUint(field(r.cols.client), 10, 16)
	if err != nil {
		return engine.Event{}, fmt.Errorf("invalid client: %w", err)
	}
	tx, err := strconv.ParseUint(field(r.cols.tx), 10, 32)
	if err != nil {
		return engine.Event{}, fmt.Errorf("invalid tx: %w", err)
	}

	ev := engine.Event{Kind: kind, Client: ledger.ClientID(client), Tx: engine.TxID(tx)}

	raw := field(r.cols.amount)
	if raw == "" {
		return ev, nil
	}
	if !kind.MovesFunds() {
		return engine.Event{}, fmt.Errorf("amount not allowed on %s", kind)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return engine.Event{}, fmt.Errorf("invalid amount: %w", err)
	}
	if amount.IsNegative() {
		return engine.Event{}, errNegativeAmount
	}
	ev.Amount = decimal.NewNullDecimal(amount)
	return ev, nil
}

// parseHeader recognises a header row and maps its column names. Unknown
// names are ignored; missing ones keep their default position.
func parseHeader(rec []string) (columns, bool) {
	if len(rec) == 0 || !strings.EqualFold(strings.TrimSpace(rec[0]), "type") {
		return columns{}, false
	}
	cols := defaultColumns
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "type":
			cols.kind = i
		case "client":
			cols.client = i
		case "tx":
			cols.tx = i
		case "amount":
			cols.amount = i
		}
	}
	return cols, true
}
