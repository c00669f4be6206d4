// Package telemetry implements the compact "ID<value>_ID<value>" text
// encoding spoken by the ground station over the firmware routes.
package telemetry

import (
	"math"
	"strconv"
	"strings"

	"github.com/msto63/hive/pkg/core/apperr"
)

// numberStart is the set of characters that end the id part of an item
const numberStart = "0123456789.-"

// Field is one identified value in a packed payload
type Field struct {
	ID    string
	Value float64
}

// Pack encodes fields as ID<value> joined by "_". Values use six
// significant digits without trailing zeros (56, 78.5, 72.34).
func Pack(fields ...Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(f.ID)
		b.WriteString(FormatValue(f.Value))
	}
	return b.String()
}

// FormatValue formats a single value the way Pack does
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Parse decodes a packed payload. Empty items are skipped.
func Parse(data string) ([]Field, error) {
	var fields []Field

	for _, item := range strings.Split(data, "_") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		idx := strings.IndexAny(item, numberStart)
		if idx < 0 {
			return nil, apperr.Newf("telemetry item %q has no value", item).WithCode(apperr.CodeInvalidInput)
		}

		value, err := strconv.ParseFloat(item[idx:], 64)
		if err != nil {
			return nil, apperr.Wrapf(err, "telemetry item %q", item).WithCode(apperr.CodeInvalidInput)
		}
		if math.IsInf(value, 0) || math.IsNaN(value) {
			return nil, apperr.Newf("telemetry item %q is not a finite number", item).WithCode(apperr.CodeInvalidInput)
		}

		fields = append(fields, Field{ID: item[:idx], Value: value})
	}

	return fields, nil
}

// Value returns the i-th value, or 0 when the payload was shorter
func Value(fields []Field, i int) float64 {
	if i < 0 || i >= len(fields) {
		return 0
	}
	return fields[i].Value
}
