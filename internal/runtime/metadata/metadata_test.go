package metadata

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestForEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 6, time.FixedZone("CET", 3600))
	md := ForEvent("sensorData", at)

	if md[KeyTopic] != "sensorData" {
		t.Fatalf("expected topic header, got %q", md[KeyTopic])
	}
	got, ok := md.PublishedAt()
	if !ok {
		t.Fatal("expected published_at to parse")
	}
	if !got.Equal(at) {
		t.Fatalf("expected %v, got %v", at, got)
	}
}

func TestPublishedAtMissingOrInvalid(t *testing.T) {
	if _, ok := (Metadata{}).PublishedAt(); ok {
		t.Fatal("expected missing header to report false")
	}
	if _, ok := (Metadata{KeyPublishedAt: "yesterday"}).PublishedAt(); ok {
		t.Fatal("expected invalid header to report false")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}

	var empty Metadata
	if empty.Clone() == nil {
		t.Fatal("expected non-nil map")
	}
}

func TestWithSkipsEmptyValues(t *testing.T) {
	base := Metadata{KeyTopic: "autoCommand"}
	enriched := base.With(KeyPartitionKey, "scenario-7")
	if _, ok := base[KeyPartitionKey]; ok {
		t.Fatal("expected base map to remain unchanged")
	}
	if enriched[KeyPartitionKey] != "scenario-7" {
		t.Fatal("expected enriched map to add entry")
	}
	if _, ok := base.With(KeyPartitionKey, "")[KeyPartitionKey]; ok {
		t.Fatal("expected empty value to be skipped")
	}
}

func TestToAndFromWatermill(t *testing.T) {
	md := Metadata{"source": "api"}
	wm := ToWatermill(md)
	wm["source"] = "mutation"
	if md["source"] != "api" {
		t.Fatal("expected original metadata to be immutable to watermill changes")
	}
	if ToWatermill(nil) == nil {
		t.Fatal("expected nil input to return empty metadata")
	}
	if FromWatermill(message.Metadata{"event": "x"})["event"] != "x" {
		t.Fatal("expected watermill metadata to convert back")
	}
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("1", nil)
	key, err := PartitionKey("autoCommand", msg)
	if err != nil || key != "" {
		t.Fatalf("expected empty key, got %q (%v)", key, err)
	}

	msg.Metadata.Set(KeyPartitionKey, "device-1")
	key, _ = PartitionKey("autoCommand", msg)
	if key != "device-1" {
		t.Fatalf("expected device-1, got %q", key)
	}
}
