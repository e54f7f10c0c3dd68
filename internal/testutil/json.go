package testutil

import (
	"encoding/json"
	"testing"

	"gorm.io/datatypes"
)

func mustJSON(t testing.TB, v interface{}) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return datatypes.JSON(data)
}
