package spmcp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// collectRows drains rows into a RowSet. A statement without a result set
// yields an empty RowSet.
func collectRows(rows pgx.Rows) (*RowSet, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := &RowSet{
		Columns: make([]string, len(fields)),
		Rows:    make([][]any, 0),
	}
	for i, fd := range fields {
		rs.Columns[i] = fd.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = convertValue(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// convertValue maps a pgx value to something encoding/json renders faithfully.
// Types without a JSON form become strings.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, json.Number,
		int8, int16, int32, int64, int, uint8, uint16, uint32, uint64:
		return val
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return convertFloat(f)
		}
		// float32 precision; float64(val) would print 0.1 as 0.10000000149011612.
		return json.Number(strconv.FormatFloat(f, 'g', -1, 32))
	case float64:
		return convertFloat(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case pgtype.Numeric:
		return convertNumeric(val)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		return formatTimeOfDay(val.Microseconds)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = convertValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case fmt.Stringer:
		// inet, cidr, macaddr and friends.
		return val.String()
	default:
		return val
	}
}

func convertFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func convertNumeric(n pgtype.Numeric) any {
	switch {
	case !n.Valid:
		return nil
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	}
	b, err := n.MarshalJSON()
	if err != nil {
		return nil
	}
	// Keeps full precision; encoding/json writes it as a bare number.
	return json.Number(b)
}

func formatTimeOfDay(us int64) string {
	d := time.Duration(us) * time.Microsecond
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := int64(d%time.Minute) / int64(time.Second)
	frac := us % 1_000_000
	if frac > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, s, frac)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatInterval(iv pgtype.Interval) string {
	var parts []string
	if years := iv.Months / 12; years != 0 {
		parts = append(parts, fmt.Sprintf("%d year(s)", years))
	}
	if months := iv.Months % 12; months != 0 {
		parts = append(parts, fmt.Sprintf("%d mon(s)", months))
	}
	if iv.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day(s)", iv.Days))
	}
	if iv.Microseconds != 0 {
		parts = append(parts, (time.Duration(iv.Microseconds) * time.Microsecond).String())
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the RowSet as an array of objects. Keys keep the order of
// their first appearance in Columns; duplicate names take the last value.
func (rs *RowSet) MarshalJSON() ([]byte, error) {
	names, index := dedupeColumns(rs.Columns)

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rs.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, name := range names {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(name)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(marshalValue(row[index[j]]))
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// dedupeColumns returns unique column names in first-seen order and, for each,
// the position of the last column carrying that name.
func dedupeColumns(columns []string) ([]string, []int) {
	pos := make(map[string]int, len(columns))
	var names []string
	for i, col := range columns {
		if _, seen := pos[col]; !seen {
			names = append(names, col)
		}
		pos[col] = i
	}
	index := make([]int, len(names))
	for j, name := range names {
		index[j] = pos[name]
	}
	return names, index
}

// marshalValue never fails: values encoding/json rejects are stringified.
func marshalValue(v any) []byte {
	b, err := json.Marshal(v)
	if err == nil {
		return b
	}
	b, _ = json.Marshal(fmt.Sprint(v))
	return b
}

// EncodeJSON pretty-prints v with two-space indentation, the format every tool
// response uses.
func EncodeJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
