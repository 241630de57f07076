package capability

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
)

// Built-in capability names.
const (
	CapLoadDataset      = "load_dataset"
	CapFetchRecords     = "fetch_records"
	CapSendNotification = "send_notification"
	CapCurrentTime      = "current_time"
)

// RegisterBuiltins installs the stock capabilities on the gateway. Dataset
// access goes through fs, so tests and the chat command can run on an
// in-memory filesystem while servers mount a real data directory.
func RegisterBuiltins(g *Gateway, fs afero.Fs) {
	g.Register(Capability{
		Name:        CapLoadDataset,
		Description: "Load records from a CSV or JSON dataset file",
		Handler:     loadDataset(fs),
	})
	g.Register(Capability{
		Name:        CapFetchRecords,
		Description: "Fetch a synthetic record sample for a named dataset",
		Handler:     fetchRecords,
	})
	g.Register(Capability{
		Name:        CapSendNotification,
		Description: "Deliver a notification to a channel",
		Handler:     sendNotification(fs),
	})
	g.Register(Capability{
		Name:        CapCurrentTime,
		Description: "Current UTC time in RFC 3339 form",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"now": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	})
}

// decodeArgs maps loose argument maps onto a typed struct, tolerating the
// usual JSON number/string looseness.
func decodeArgs(capability string, args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return InvalidArgs(capability, err.Error())
	}
	return nil
}

type loadDatasetArgs struct {
	Source string `mapstructure:"source"`
	Limit  int    `mapstructure:"limit"`
}

func loadDataset(fs afero.Fs) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in loadDatasetArgs
		if err := decodeArgs(CapLoadDataset, args, &in); err != nil {
			return nil, err
		}
		if in.Source == "" {
			return nil, InvalidArgs(CapLoadDataset, "source is required")
		}

		f, err := fs.Open(in.Source)
		if err != nil {
			return nil, fmt.Errorf("opening dataset %s: %w", in.Source, err)
		}
		defer f.Close()

		var records []map[string]any
		switch strings.ToLower(path.Ext(in.Source)) {
		case ".csv":
			records, err = readCSV(f)
		case ".json":
			records, err = readJSON(f)
		default:
			return nil, InvalidArgs(CapLoadDataset, fmt.Sprintf("unsupported dataset format %q", path.Ext(in.Source)))
		}
		if err != nil {
			return nil, fmt.Errorf("parsing dataset %s: %w", in.Source, err)
		}

		if in.Limit > 0 && len(records) > in.Limit {
			records = records[:in.Limit]
		}
		return map[string]any{
			"source":  in.Source,
			"count":   len(records),
			"records": records,
		}, nil
	}
}

func readCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		record := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			record[col] = coerce(row[i])
		}
		records = append(records, record)
	}
	return records, nil
}

func readJSON(r io.Reader) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// coerce turns numeric-looking CSV cells into float64 so downstream
// aggregation sees numbers, not strings.
func coerce(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return ""
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n
	}
	return trimmed
}

type fetchRecordsArgs struct {
	Dataset string `mapstructure:"dataset"`
	Count   int    `mapstructure:"count"`
}

// fetchRecords synthesizes a deterministic sales sample. It backs demos and
// tests that have no dataset file mounted.
func fetchRecords(ctx context.Context, args map[string]any) (any, error) {
	var in fetchRecordsArgs
	if err := decodeArgs(CapFetchRecords, args, &in); err != nil {
		return nil, err
	}
	if in.Count <= 0 || in.Count > 1000 {
		in.Count = 12
	}
	if in.Dataset == "" {
		in.Dataset = "sales"
	}

	regions := []string{"north", "south", "east", "west"}
	records := make([]map[string]any, 0, in.Count)
	for i := 0; i < in.Count; i++ {
		records = append(records, map[string]any{
			"id":     fmt.Sprintf("%s-%03d", in.Dataset, i+1),
			"region": regions[i%len(regions)],
			"amount": float64(250 + 175*i%1250),
			"closed": i%3 != 0,
		})
	}
	return map[string]any{
		"source":  in.Dataset,
		"count":   len(records),
		"records": records,
	}, nil
}

type sendNotificationArgs struct {
	Channel   string `mapstructure:"channel"`
	Recipient string `mapstructure:"recipient"`
	Message   string `mapstructure:"message"`
}

// sendNotification appends deliveries to a log file on fs. A real
// deployment swaps this for a provider-backed capability under the same
// name.
func sendNotification(fs afero.Fs) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in sendNotificationArgs
		if err := decodeArgs(CapSendNotification, args, &in); err != nil {
			return nil, err
		}
		if in.Message == "" {
			return nil, InvalidArgs(CapSendNotification, "message is required")
		}
		if in.Channel == "" {
			in.Channel = "default"
		}

		f, err := fs.OpenFile("notifications.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening notification log: %w", err)
		}
		defer f.Close()

		line := fmt.Sprintf("%s\t%s\t%s\t%s\n",
			time.Now().UTC().Format(time.RFC3339), in.Channel, in.Recipient, in.Message)
		if _, err := f.WriteString(line); err != nil {
			return nil, fmt.Errorf("writing notification: %w", err)
		}
		return map[string]any{
			"delivered": true,
			"channel":   in.Channel,
		}, nil
	}
}
