package testkit

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"pmuplace/domain/dataset"
)

// BusGeneratorConfig configures the synthetic bus angle generator
type BusGeneratorConfig struct {
	Name    string  `json:"name"`
	Target  string  `json:"target"`
	Buses   int     `json:"buses"`
	Samples int     `json:"samples"`
	Noise   float64 `json:"noise"`
	Seed    int64   `json:"seed"`
	// Informative maps a bus number to its weight in the target
	Informative map[int]float64 `json:"informative"`
}

// DefaultBusConfig returns a small grid where three buses drive the target
func DefaultBusConfig() BusGeneratorConfig {
	return BusGeneratorConfig{
		Name:        "synthetic",
		Target:      "angDiff",
		Buses:       8,
		Samples:     120,
		Noise:       0.01,
		Seed:        42,
		Informative: map[int]float64{2: 1.0, 5: 0.6, 7: 0.3},
	}
}

// BusDataGenerator generates bus voltage angle tables. Each bus follows a
// phase-shifted oscillation; the target is a quadratic in the informative
// buses plus noise.
type BusDataGenerator struct {
	config BusGeneratorConfig
	rng    *rand.Rand
}

// NewBusDataGenerator creates a new generator
func NewBusDataGenerator(config BusGeneratorConfig) *BusDataGenerator {
	return &BusDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// BusName returns the column name of bus i (1-based)
func BusName(i int) string {
	return "B" + strconv.Itoa(i)
}

// Generate builds the table. The target is the first column.
func (g *BusDataGenerator) Generate() (*dataset.Table, error) {
	c := g.config
	if c.Buses <= 0 || c.Samples <= 0 {
		return nil, fmt.Errorf("buses and samples must be positive")
	}
	for bus := range c.Informative {
		if bus < 1 || bus > c.Buses {
			return nil, fmt.Errorf("informative bus %d outside 1..%d", bus, c.Buses)
		}
	}

	informative := make([]int, 0, len(c.Informative))
	for bus := range c.Informative {
		informative = append(informative, bus)
	}
	sort.Ints(informative)

	headers := []string{c.Target}
	columns := map[string][]float64{c.Target: make([]float64, c.Samples)}
	phases := make([]float64, c.Buses)
	for i := range phases {
		phases[i] = g.rng.Float64() * 2 * math.Pi
		name := BusName(i + 1)
		headers = append(headers, name)
		columns[name] = make([]float64, c.Samples)
	}

	for s := 0; s < c.Samples; s++ {
		t := float64(s) / float64(c.Samples) * 4 * math.Pi
		for i := 0; i < c.Buses; i++ {
			columns[BusName(i+1)][s] = math.Sin(t*float64(i+1)/3+phases[i]) + c.Noise*g.rng.NormFloat64()
		}
		var y float64
		for _, bus := range informative {
			w := c.Informative[bus]
			x := columns[BusName(bus)][s]
			y += w*x + 0.5*w*x*x
		}
		columns[c.Target][s] = y + c.Noise*g.rng.NormFloat64()
	}

	return dataset.NewTable(c.Name, headers, columns)
}

// WriteCSV writes a table to dir/<name>.csv and returns the path
func WriteCSV(dir string, table *dataset.Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, table.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Headers); err != nil {
		return "", err
	}
	row := make([]string, len(table.Headers))
	for r := 0; r < table.Rows; r++ {
		for j, h := range table.Headers {
			row[j] = strconv.FormatFloat(table.Columns[h][r], 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return path, w.Error()
}
