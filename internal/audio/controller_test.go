package audio

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseSinkState(t *testing.T) {
	tests := []struct {
		in   string
		want SinkState
	}{
		{"RUNNING", SinkRunning},
		{"running", SinkRunning},
		{"IDLE", SinkIdle},
		{"SUSPENDED", SinkSuspended},
		{"ERROR", SinkError},
		{"UNLINKED", SinkError},
		{"", SinkUnknown},
		{"garbage", SinkUnknown},
	}
	for _, tt := range tests {
		if got := parseSinkState(tt.in); got != tt.want {
			t.Errorf("parseSinkState(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSinkListDecoding(t *testing.T) {
	raw := []byte(`[
		{
			"index": 47,
			"name": "alsa_output.usb-Scarlett_2i2.analog-stereo",
			"description": "Scarlett 2i2",
			"state": "RUNNING",
			"driver": "module-alsa-card.c",
			"properties": {"device.bus": "usb"}
		},
		{
			"index": 48,
			"name": "alsa_output.pci-0000_00_1f.3.analog-stereo",
			"description": "Built-in Audio",
			"state": "SUSPENDED",
			"driver": "module-alsa-card.c",
			"properties": {"device.bus": "pci"}
		}
	]`)

	var parsed []pactlSink
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 sinks, got %d", len(parsed))
	}
	if parsed[0].Properties["device.bus"] != "usb" {
		t.Errorf("expected usb bus, got %q", parsed[0].Properties["device.bus"])
	}

	sink := Sink{
		Index: parsed[0].Index,
		Name:  parsed[0].Name,
		State: parseSinkState(parsed[0].State),
		Bus:   parsed[0].Properties["device.bus"],
	}
	if !sink.USB() {
		t.Error("expected first sink to be USB-backed")
	}
	if sink.State != SinkRunning {
		t.Errorf("expected running, got %v", sink.State)
	}
}

func TestDecodeJournal(t *testing.T) {
	out := []byte(`{"__REALTIME_TIMESTAMP":"1756400000000000","_SYSTEMD_USER_UNIT":"wireplumber.service","MESSAGE":"device disappeared","PRIORITY":"3"}
{"__REALTIME_TIMESTAMP":"1756400001000000","_SYSTEMD_USER_UNIT":"pipewire.service","MESSAGE":"xrun on node 47","PRIORITY":"3"}
`)

	entries, err := decodeJournal(out)
	if err != nil {
		t.Fatalf("decodeJournal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Unit != "wireplumber.service" {
		t.Errorf("unexpected unit %q", entries[0].Unit)
	}
	if entries[0].Priority != 3 {
		t.Errorf("expected priority 3, got %d", entries[0].Priority)
	}
	want := time.UnixMicro(1756400000000000)
	if !entries[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", entries[0].Timestamp, want)
	}
}

func TestDecodeJournal_Empty(t *testing.T) {
	entries, err := decodeJournal(nil)
	if err != nil {
		t.Fatalf("decodeJournal: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}
