package delivery

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// scoreRequiredTypes are the data types whose records are meaningless
// without a numeric score.
var scoreRequiredTypes = map[string]bool{
	"nps":    true,
	"review": true,
	"csat":   true,
}

// ValidateRecord checks a record before it joins a batch. Records whose
// data_type demands a score must carry one, and it must be numeric; a
// numeric string counts. Records failing validation are excluded from
// delivery rather than sent and rejected.
func ValidateRecord(record map[string]interface{}) error {
	dataType, _ := record["data_type"].(string)
	if !scoreRequiredTypes[dataType] {
		return nil
	}

	score, ok := record["score"]
	if !ok || score == nil || score == "" {
		return fmt.Errorf("%w for data_type %q", ErrScoreRequired, dataType)
	}
	if !isNumeric(score) {
		return fmt.Errorf("%w, got %v for data_type %q", ErrScoreNotNumeric, score, dataType)
	}
	return nil
}

func isNumeric(v interface{}) bool {
	switch s := v.(type) {
	case float64, float32, int, int32, int64:
		return true
	case json.Number:
		_, err := s.Float64()
		return err == nil
	case string:
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	default:
		return false
	}
}
