package csv

import (
	"encoding/json"
	"fmt"
	"strconv"

	jsonpool "github.com/ajitpratap0/hibob-extractor/pkg/json"
	"github.com/ajitpratap0/hibob-extractor/pkg/models"
)

// FormatCell renders a flat row value as cell text. Scalars are written as
// text, null as an empty cell; lists and objects become compact JSON.
func FormatCell(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case *models.Record, []interface{}, map[string]interface{}:
		buf, err := jsonpool.EncodeToBuffer(v)
		if err != nil {
			return "", err
		}
		defer jsonpool.PutBuffer(buf)
		return buf.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}
