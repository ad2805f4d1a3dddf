package scheduler

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/component"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
)

var sourceRangeDuration = regexp.MustCompile(`^(\d+)([dhms])$`)

// sourceRangePlan is the parsed form of a Harvester's sourceRange (§4.5.1
// step 3): either a record count (limit set, endDate zero) or a time
// window (endDate set).
type sourceRangePlan struct {
	limit    int // 0 means "no count limit" (time-mode)
	endDate  time.Time
	hasEnd   bool
	countSet bool
}

func parseSourceRange(raw string, cursor time.Time) (sourceRangePlan, error) {
	if raw == "" {
		return sourceRangePlan{limit: 1, countSet: true}, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return sourceRangePlan{limit: n, countSet: true}, nil
	}
	if m := sourceRangeDuration.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		var d time.Duration
		switch m[2] {
		case "d":
			d = time.Duration(n) * 24 * time.Hour
		case "h":
			d = time.Duration(n) * time.Hour
		case "m":
			d = time.Duration(n) * time.Minute
		case "s":
			d = time.Duration(n) * time.Second
		}
		return sourceRangePlan{endDate: cursor.Add(d), hasEnd: true}, nil
	}
	return sourceRangePlan{}, twinerr.New(twinerr.Configuration, "invalid sourceRange").WithContext("sourceRange", raw)
}

// ValidateSourceRange reports whether raw parses as a §4.5.1 sourceRange
// (a bare count or an "<N><d|h|m|s>" time window), for the engine's dry-run
// validation pass (§4.2 step 1) to check before any component runs.
func ValidateSourceRange(raw string) error {
	_, err := parseSourceRange(raw, time.Time{})
	return err
}

// RunHarvest implements the harvest run algorithm of spec §4.5.1 exactly.
// It returns true if a derivation ran and persisted a new record, false if
// there was nothing to do (no new source data, or sourceRangeMin unmet).
func RunHarvest(ctx context.Context, h *component.Harvester, records record.Store, blobs blob.Store) (bool, error) {
	if h.Source == "" {
		return false, twinerr.New(twinerr.Configuration, "harvester has no source configured").WithContext("harvester", h.Name)
	}

	// Step 2: determine the cursor.
	var cursor time.Time
	latest, ok, err := records.Latest(ctx, h.Name)
	if err != nil {
		return false, err
	}
	if ok {
		cursor = latest.Date
	} else {
		first, ok, err := records.First(ctx, h.Source)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		cursor = first.Date.Add(-1 * time.Second)
	}

	// Step 3: parse sourceRange.
	plan, err := parseSourceRange(h.SourceRange, cursor)
	if err != nil {
		return false, err
	}

	// Step 4: fetch source records.
	var sourceData []record.Record
	if plan.hasEnd {
		sourceData, err = records.RecordsInRange(ctx, h.Source, cursor, plan.endDate, 0, false)
	} else {
		limit := plan.limit
		if limit <= 0 {
			limit = 1
		}
		sourceData, err = records.RecordsAfter(ctx, h.Source, cursor, limit)
	}
	if err != nil {
		return false, err
	}

	// Step 5: nothing to do.
	if len(sourceData) == 0 {
		return false, nil
	}

	// Step 6: sourceRangeMin gate.
	if plan.countSet && plan.limit > 0 && h.SourceRangeMin && len(sourceData) < plan.limit {
		return false, nil
	}

	// Step 7: storage date.
	storageDate := sourceData[len(sourceData)-1].Date
	if plan.hasEnd {
		storageDate = plan.endDate
	}

	// Step 8: fetch dependencies.
	deps := make(map[string][]record.Record, len(h.Dependencies))
	for _, dep := range h.Dependencies {
		limit := dep.Limit
		if limit <= 0 {
			limit = 1
		}
		rows, err := records.RecordsBefore(ctx, dep.Name, storageDate, limit)
		if err != nil {
			return false, err
		}
		deps[dep.Name] = rows
	}

	// Step 9: call user harvest code.
	sourceOne := !plan.hasEnd && plan.limit == 1
	result, err := h.HarvestFn(ctx, component.HarvestInput{
		Source:    sourceData,
		SourceOne: sourceOne,
		Deps:      deps,
	})
	if err != nil {
		return false, err
	}

	// Step 10: persist.
	if h.MultipleResults && len(result.Results) > 0 && !sourceOne && len(result.Results) == len(sourceData) {
		for i, payload := range result.Results {
			handle, err := blobs.Save(ctx, h.Name, payload, "")
			if err != nil {
				return false, twinerr.Wrap(twinerr.Storage, "failed to save harvested blob", err)
			}
			_, err = records.Insert(ctx, h.Name, record.Record{
				Name:        h.Name,
				ContentType: h.ContentType,
				URL:         handle,
				Date:        sourceData[i].Date,
			})
			if err != nil {
				return false, err
			}
		}
		return true, nil
	}

	payload := result.Single
	if len(result.Results) > 0 {
		payload = result.Results[0]
	}
	handle, err := blobs.Save(ctx, h.Name, payload, "")
	if err != nil {
		return false, twinerr.Wrap(twinerr.Storage, "failed to save harvested blob", err)
	}
	if _, err := records.Insert(ctx, h.Name, record.Record{
		Name:        h.Name,
		ContentType: h.ContentType,
		URL:         handle,
		Date:        storageDate,
	}); err != nil {
		return false, err
	}
	return true, nil
}
