package jsoncodec

import (
	"bytes"
	"testing"
)

type reading struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	v := 21.5
	data, err := Marshal(reading{Name: "kitchen", Value: &v})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"name":"kitchen","value":21.5}` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var out reading
	if err := Unmarshal([]byte(`{"name":"hall"}`), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Name != "hall" || out.Value != nil {
		t.Fatalf("expected missing value to stay nil, got %#v", out)
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		`{"a":1}`:          true,
		`[1,2,3]`:          true,
		`"text"`:           true,
		`{'steps': 'bad'}`: false,
		`{"a":1`:           false,
		``:                 false,
		`{"a":1} trailing`: false,
	}
	for in, want := range cases {
		if got := Valid([]byte(in)); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEncodeWritesOneLinePerValue(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, map[string]int{"a": 1}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := Encode(buf, map[string]int{"b": 2}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got := buf.String(); got != "{\"a\":1}\n{\"b\":2}\n" {
		t.Fatalf("unexpected output %q", got)
	}

	var first map[string]int
	if err := Decode(buf, &first); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if first["a"] != 1 {
		t.Fatalf("unexpected decoded value %#v", first)
	}
}
