package ingest

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/cuemby/ingestord/pkg/types"
)

// Format names one of the tagged request variants spec.md §4.1 names.
// Decoding each variant to a flat list of raw JSON objects is the
// parser's job; the ingestion core never inspects request bytes itself.
type Format string

const (
	FormatJSONArray       Format = "json_array"
	FormatNDJSON          Format = "ndjson"
	FormatBulk            Format = "bulk"
	FormatKinesisFirehose Format = "kinesis_firehose"
	FormatGCPPubSub       Format = "gcp_pubsub"
	FormatRUM             Format = "rum"
	FormatUsage           Format = "usage"
)

// Request is one call's raw payload, tagged with the variant that
// determines how to decode it.
type Request struct {
	Format Format
	Body   []byte
}

// decodedRecord is a parsed record together with the Bulk-variant
// metadata spec.md §4.1 step 2 needs, if any.
type decodedRecord struct {
	Value         map[string]any
	Action        types.BulkAction
	ID            string
	IndexOverride string
	Err           string // non-empty: this record failed to parse
}

func decode(req Request) ([]decodedRecord, error) {
	switch req.Format {
	case FormatJSONArray:
		return decodeJSONArray(req.Body)
	case FormatNDJSON, FormatRUM, FormatUsage:
		// RUM and Usage are both newline-delimited JSON event streams at
		// the wire level; the destination-stream distinction is made by
		// the caller via stream_name, not by payload shape.
		return decodeNDJSON(req.Body)
	case FormatBulk:
		return decodeBulk(req.Body)
	case FormatKinesisFirehose:
		return decodeKinesisFirehose(req.Body)
	case FormatGCPPubSub:
		return decodeGCPPubSub(req.Body)
	default:
		return nil, fmt.Errorf("unknown request format %q", req.Format)
	}
}

func unmarshalObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record is not a JSON object")
	}
	return obj, nil
}

func decodeJSONArray(body []byte) ([]decodedRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json array: %w", err)
	}
	out := make([]decodedRecord, 0, len(raw))
	for _, item := range raw {
		out = append(out, asDecodedRecord(item))
	}
	return out, nil
}

func asDecodedRecord(v any) decodedRecord {
	obj, ok := v.(map[string]any)
	if !ok {
		return decodedRecord{Err: "document_failed_transform"}
	}
	return decodedRecord{Value: obj}
}

func decodeNDJSON(body []byte) ([]decodedRecord, error) {
	var out []decodedRecord
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		obj, err := unmarshalObject(line)
		if err != nil {
			out = append(out, decodedRecord{Err: "document_failed_transform"})
			continue
		}
		out = append(out, decodedRecord{Value: obj})
	}
	return out, scanner.Err()
}

// bulkHeader is the Elasticsearch-bulk-style action line preceding each
// payload line, per spec.md §4.1 step 2.
type bulkHeader struct {
	Create *bulkHeaderBody `json:"create"`
	Index  *bulkHeaderBody `json:"index"`
	Update *bulkHeaderBody `json:"update"`
}

type bulkHeaderBody struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

func decodeBulk(body []byte) ([]decodedRecord, error) {
	var out []decodedRecord
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		headerLine := bytes.TrimSpace(scanner.Bytes())
		if len(headerLine) == 0 {
			continue
		}
		var hdr bulkHeader
		headerErr := json.Unmarshal(headerLine, &hdr)
		action, body := resolveBulkAction(hdr)

		// Always consume the payload line paired with this header, even
		// when the header itself is malformed, so a single bad header
		// never desynchronizes the rest of the stream's header/payload
		// pairing.
		hasPayload := scanner.Scan()
		var payload []byte
		if hasPayload {
			payload = bytes.TrimSpace(scanner.Bytes())
		}

		if headerErr != nil || body == nil || body.Index == "" {
			out = append(out, decodedRecord{Err: "document_failed_transform"})
			continue
		}
		if !hasPayload {
			out = append(out, decodedRecord{Err: "document_failed_transform"})
			break
		}

		obj, err := unmarshalObject(payload)
		if err != nil {
			out = append(out, decodedRecord{Err: "document_failed_transform"})
			continue
		}

		out = append(out, decodedRecord{
			Value:         obj,
			Action:        action,
			ID:            body.ID,
			IndexOverride: body.Index,
		})
	}
	return out, scanner.Err()
}

func resolveBulkAction(hdr bulkHeader) (types.BulkAction, *bulkHeaderBody) {
	switch {
	case hdr.Create != nil:
		return types.BulkActionCreate, hdr.Create
	case hdr.Index != nil:
		return types.BulkActionIndex, hdr.Index
	case hdr.Update != nil:
		return types.BulkActionUpdate, hdr.Update
	default:
		return "", nil
	}
}

// kinesisFirehoseEnvelope is the record shape AWS Kinesis Data Firehose
// HTTP endpoint delivery sends: a batch of base64-encoded payloads, each
// of which may itself be NDJSON.
type kinesisFirehoseEnvelope struct {
	RequestID string `json:"requestId"`
	Records   []struct {
		Data string `json:"data"`
	} `json:"records"`
}

func decodeKinesisFirehose(body []byte) ([]decodedRecord, error) {
	var env kinesisFirehoseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode kinesis firehose envelope: %w", err)
	}

	var out []decodedRecord
	for _, rec := range env.Records {
		raw, err := base64.StdEncoding.DecodeString(rec.Data)
		if err != nil {
			out = append(out, decodedRecord{Err: "document_failed_transform"})
			continue
		}
		records, err := decodeNDJSON(raw)
		if err != nil {
			out = append(out, decodedRecord{Err: "document_failed_transform"})
			continue
		}
		out = append(out, records...)
	}
	return out, nil
}

// gcpPubSubEnvelope is the push-subscription payload shape Google Cloud
// Pub/Sub sends to an HTTP endpoint: one base64-encoded JSON message.
type gcpPubSubEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func decodeGCPPubSub(body []byte) ([]decodedRecord, error) {
	var env gcpPubSubEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode gcp pubsub envelope: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return []decodedRecord{{Err: "document_failed_transform"}}, nil
	}
	obj, err := unmarshalObject(raw)
	if err != nil {
		return []decodedRecord{{Err: "document_failed_transform"}}, nil
	}
	for k, v := range env.Message.Attributes {
		if _, exists := obj[k]; !exists {
			obj[k] = v
		}
	}
	return []decodedRecord{{Value: obj}}, nil
}
