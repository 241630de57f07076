// Command gen-dataset seeds a data directory with small sample datasets in
// the shapes the load_dataset capability reads. Point executors.dataset_dir
// at the output and the ingestion executor has real files to chew on.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

func main() {
	targetDir := "datasets"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}

	// Ensure dir exists
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		panic(err)
	}

	fmt.Printf("Generating sample datasets in: %s\n", targetDir)

	records := sampleRecords("sales", 24)

	// 1. CSV variant, the common case for exported spreadsheets.
	check(writeCSV(filepath.Join(targetDir, "sales.csv"), records))

	// 2. JSON variant of the same records, so both parse paths get data.
	check(writeJSON(filepath.Join(targetDir, "sales.json"), records))

	fmt.Println("Done. Verify contents in", targetDir)
}

type record struct {
	ID     string  `json:"id"`
	Region string  `json:"region"`
	Amount float64 `json:"amount"`
	Closed bool    `json:"closed"`
}

// sampleRecords mirrors the synthetic sample the fetch_records capability
// produces, so file-backed and synthetic runs look alike downstream.
func sampleRecords(dataset string, count int) []record {
	regions := []string{"north", "south", "east", "west"}
	records := make([]record, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, record{
			ID:     fmt.Sprintf("%s-%03d", dataset, i+1),
			Region: regions[i%len(regions)],
			Amount: float64(250 + 175*i%1250),
			Closed: i%3 != 0,
		})
	}
	return records
}

func writeCSV(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "region", "amount", "closed"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Region,
			strconv.FormatFloat(r.Amount, 'f', 2, 64),
			strconv.FormatBool(r.Closed),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, records []record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}
