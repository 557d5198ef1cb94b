package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kbizikav/gasless-gas-station/internal/model"
)

func testEnvelope() model.Envelope {
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    map[string]any{"tx_hash": "0xabc", "status": "confirmed"},
		Meta: model.EnvelopeMeta{
			RequestID: "req-1",
			Timestamp: time.Unix(1_700_000_000, 0).UTC(),
			Command:   "swap run",
		},
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, testEnvelope(), "json"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if decoded["success"] != true {
		t.Fatalf("success = %v", decoded["success"])
	}
	data := decoded["data"].(map[string]any)
	if data["tx_hash"] != "0xabc" {
		t.Fatalf("data = %v", data)
	}
}

func TestRenderPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, testEnvelope(), "plain"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "success=true") {
		t.Fatalf("plain output missing success: %q", line)
	}
	if !strings.Contains(line, "tx_hash:0xabc") && !strings.Contains(line, "0xabc") {
		t.Fatalf("plain output missing data: %q", line)
	}
}

func TestRenderPlainSortsKeys(t *testing.T) {
	var buf bytes.Buffer
	env := testEnvelope()
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	first := buf.String()
	buf.Reset()
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if first != buf.String() {
		t.Fatal("plain rendering must be deterministic")
	}
}

func TestRenderError(t *testing.T) {
	var buf bytes.Buffer
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error:   &model.ErrorBody{Code: 22, Type: "fee_exceeds_bound", Message: "fee exceeds bound"},
	}
	if err := Render(&buf, env, "json"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	errBody := decoded["error"].(map[string]any)
	if errBody["type"] != "fee_exceeds_bound" {
		t.Fatalf("error = %v", errBody)
	}
}

func TestRenderLines(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderLines(&buf, "transaction: 0xabc", "confirmed in block 42"); err != nil {
		t.Fatalf("RenderLines failed: %v", err)
	}
	want := "transaction: 0xabc\nconfirmed in block 42\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}
