package sample

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/chartgpt/chartgpt/internal/dataset"
)

// Columns of every generated sales table, in order.
var Columns = []string{"order_id", "order_date", "region", "country", "product", "channel", "units", "unit_price", "revenue"}

var regions = map[string][]string{
	"North America": {"US", "CA", "MX"},
	"Europe":        {"DE", "GB", "FR"},
	"Asia":          {"JP", "IN", "SG"},
}

var regionOrder = []string{"North America", "Europe", "Asia"}

var products = []struct {
	name  string
	price float64
}{
	{"Widget", 19.99},
	{"Gadget", 49.5},
	{"Gizmo", 120},
	{"Doohickey", 7.25},
}

type Generator struct {
	rnd   *rand.Rand
	start time.Time
	days  int
	seq   int64
}

func NewGenerator(seed int64, start time.Time, days int) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed)), start: start.UTC().Truncate(24 * time.Hour), days: days}
}

func (g *Generator) NextRow() []any {
	g.seq++
	region := regionOrder[g.rnd.Intn(len(regionOrder))]
	countries := regions[region]
	product := products[g.rnd.Intn(len(products))]
	units := int64(1 + g.rnd.Intn(g.unitsCeiling(region)))
	price := round2(product.price * (0.9 + g.rnd.Float64()*0.2))
	orderDate := g.start.AddDate(0, 0, g.rnd.Intn(g.days))

	return []any{
		g.seq,
		orderDate.Format(time.DateOnly),
		region,
		countries[g.rnd.Intn(len(countries))],
		product.name,
		pickChannel(g.rnd),
		units,
		price,
		round2(price * float64(units)),
	}
}

// Table builds n rows into a dataset table.
func (g *Generator) Table(n int) (*dataset.Table, error) {
	rows := make([][]any, 0, n)
	for range n {
		rows = append(rows, g.NextRow())
	}
	return dataset.New(Columns, rows)
}

// North America orders skew larger so regional charts have a clear leader.
func (g *Generator) unitsCeiling(region string) int {
	if region == "North America" {
		return 12
	}
	return 8
}

func pickChannel(r *rand.Rand) string {
	if r.Intn(100) < 65 {
		return "online"
	}
	return "retail"
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// Encode renders table in the requested file format.
func Encode(table *dataset.Table, format string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(table)
	case FormatParquet:
		encoded, err := dataset.EncodeParquet(table)
		if err != nil {
			return nil, err
		}
		return encoded.Data, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func encodeCSV(table *dataset.Table) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(table.Columns); err != nil {
		return nil, err
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, value := range row {
			record[i] = csvCell(value)
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(typed, 10)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
