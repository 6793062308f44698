package transport

import (
	"encoding/json"
	"testing"

	"github.com/rljson/catalog/internal/sync"
)

func TestEncodeDecodeRoundTripsConnectorPayload(t *testing.T) {
	want := sync.ConnectorPayload{Origin: "origin-a", Ref: "sha256-abc", Seq: 3}
	data, err := encodeEnvelope("/carGeneral", want)
	if err != nil {
		t.Fatal(err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Event != "/carGeneral" {
		t.Fatalf("unexpected event: %q", env.Event)
	}
	got, err := decodePayload(env.Event, env.Payload)
	if err != nil {
		t.Fatal(err)
	}
	cp, ok := got.(sync.ConnectorPayload)
	if !ok || cp.Origin != want.Origin || cp.Ref != want.Ref || cp.Seq != want.Seq {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDecodePayloadPicksAckClientOverAckOnOverlappingSuffix(t *testing.T) {
	data, err := json.Marshal(sync.AckClientPayload{Ref: "sha256-xyz"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodePayload("/carGeneral:ack:client", data)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(sync.AckClientPayload); !ok {
		t.Fatalf("expected AckClientPayload, got %T", got)
	}
}

func TestDecodePayloadGapFillRequestAndResponse(t *testing.T) {
	reqData, _ := json.Marshal(sync.GapFillRequest{Route: "/carGeneral", AfterSeq: 2})
	got, err := decodePayload("/carGeneral:gapfill:req", reqData)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(sync.GapFillRequest); !ok {
		t.Fatalf("expected GapFillRequest, got %T", got)
	}

	resData, _ := json.Marshal(sync.GapFillResponse{Route: "/carGeneral"})
	got, err = decodePayload("/carGeneral:gapfill:res", resData)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(sync.GapFillResponse); !ok {
		t.Fatalf("expected GapFillResponse, got %T", got)
	}
}
