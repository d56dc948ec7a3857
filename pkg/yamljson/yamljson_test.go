package yamljson

import (
	"encoding/json"
	"testing"
)

func TestConvert(t *testing.T) {
	in := []byte(`
engine:
  poll_interval: 30s
  warning_after_days: 7
operator:
  owner_user_ids: [1, 2]
1: numeric key
`)
	out, err := Convert(in)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	eng := got["engine"].(map[string]any)
	if eng["poll_interval"] != "30s" || eng["warning_after_days"] != float64(7) {
		t.Fatalf("engine = %v", eng)
	}
	if got["1"] != "numeric key" {
		t.Fatalf("numeric key not stringified: %v", got)
	}
}

func TestConvertFile(t *testing.T) {
	raw := []byte(`{"a":1}`)
	out, err := ConvertFile("cfg.json", raw)
	if err != nil || string(out) != string(raw) {
		t.Fatalf("json passthrough: %s %v", out, err)
	}
	if _, err := ConvertFile("cfg.YML", []byte("a: [1,")); err == nil {
		t.Fatal("expected yaml error")
	}
}
